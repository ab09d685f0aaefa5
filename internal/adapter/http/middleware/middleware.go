package middleware

import (
	"bytes"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qris-gateway/internal/core/ports"
	"qris-gateway/pkg/apperror"
	"qris-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Header names for the signed-request pipeline.
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	// Context keys
	CtxMerchantID = "merchant_id"
	CtxEnv        = "env"
	CtxMerchant   = "merchant"
)

// SignedRequestConfig carries the tunables for the signed-request pipeline.
type SignedRequestConfig struct {
	SignWindow time.Duration
	NonceTTL   time.Duration
}

// SignedRequest builds the ordered auth chain every gateway call passes
// through: API key lookup, merchant status, IP allow-list, timestamp
// window, nonce uniqueness, HMAC signature. Rate limiting (the final
// step) is a separate middleware chained after this one, since it
// depends on the merchant_id this one resolves.
func SignedRequest(
	merchantRepo ports.MerchantRepository,
	credRepo ports.CredentialsRepository,
	credSvc ports.CredentialService,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	cfg SignedRequestConfig,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Step 1: API-key presence and resolution.
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			response.Error(c, apperror.ErrMissingApiKey())
			c.Abort()
			return
		}

		merchantID, env, err := credSvc.Resolve(c.Request.Context(), apiKey)
		if err != nil {
			response.Error(c, apperror.ErrInvalidApiKey())
			c.Abort()
			return
		}

		merchant, err := merchantRepo.GetByID(c.Request.Context(), merchantID)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch merchant")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if merchant == nil {
			response.Error(c, apperror.ErrInvalidApiKey())
			c.Abort()
			return
		}

		// Step 2: merchant active.
		if !merchant.IsActive() {
			response.Error(c, apperror.ErrNotApproved())
			c.Abort()
			return
		}

		// Step 3: IP allow-list, only if the merchant opted in.
		if merchant.IPWhitelistOn {
			if !ipAllowed(clientIP(c), merchant.IPWhitelist) {
				response.Error(c, apperror.ErrIpNotAllowed())
				c.Abort()
				return
			}
		}

		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)
		if signature == "" || timestampStr == "" || nonce == "" {
			response.Error(c, apperror.ErrMissingSignatureHeaders())
			c.Abort()
			return
		}

		// Step 4: timestamp window.
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Error(c, apperror.ErrInvalidTimestamp())
			c.Abort()
			return
		}
		now := time.Now().Unix()
		if math.Abs(float64(now-timestamp)) > cfg.SignWindow.Seconds() {
			response.Error(c, apperror.ErrRequestExpired())
			c.Abort()
			return
		}

		// Step 5: nonce uniqueness.
		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), merchant.ID, nonce, cfg.NonceTTL)
		if err != nil {
			log.Error().Err(err).Msg("nonce store error")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !isNew {
			response.Error(c, apperror.ErrReplayDetected())
			c.Abort()
			return
		}

		// Step 6: signature verification.
		creds, err := credRepo.Get(c.Request.Context(), merchant.ID)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch merchant credentials")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		set := creds.ForEnv(env)
		if set.APISecret == "" {
			response.Error(c, apperror.ErrNoSigningSecret())
			c.Abort()
			return
		}
		signingSecret, err := encSvc.Decrypt(set.APISecret)
		if err != nil {
			log.Error().Err(err).Msg("failed to decrypt signing secret")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		pathWithQuery := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			pathWithQuery += "?" + c.Request.URL.RawQuery
		}
		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			pathWithQuery,
			timestamp,
			nonce,
			string(bodyBytes),
		)

		if !sigSvc.Verify(signingSecret, canonical, signature) {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, merchant.ID)
		c.Set(CtxEnv, env)
		c.Set(CtxMerchant, merchant)

		c.Next()
	}
}

// clientIP returns the first X-Forwarded-For address if present,
// otherwise the connection's remote address, with IPv4-mapped IPv6
// addresses unmapped to their plain IPv4 form.
func clientIP(c *gin.Context) net.IP {
	var raw string
	if fwd := c.Request.Header.Get("X-Forwarded-For"); fwd != "" {
		raw = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else {
		raw = c.ClientIP()
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// ipAllowed reports whether ip matches any entry in allowlist. Entries
// are single addresses or CIDR blocks. An enabled but empty allowlist
// never matches.
func ipAllowed(ip net.IP, allowlist []string) bool {
	if ip == nil || len(allowlist) == 0 {
		return false
	}
	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if network.Contains(ip) {
				return true
			}
			continue
		}
		if candidate := net.ParseIP(entry); candidate != nil && candidate.Equal(ip) {
			return true
		}
	}
	return false
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "Internal",
						"message": "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}
