package token

import (
	"net/http"
	"strconv"
	"time"

	"carelink/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the reference token issuing service. It mints HMAC-signed
// channel join tokens; production deployments may substitute the media
// vendor's own issuer as long as the wire contract holds.
type Issuer struct {
	appID  string
	secret []byte
}

func NewIssuer(appID, secret string) *Issuer {
	return &Issuer{appID: appID, secret: []byte(secret)}
}

type channelClaims struct {
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs a join token for the channel, valid for ttl.
func (i *Issuer) Mint(channelName string, uid uint32, role string, ttl time.Duration) (string, time.Time, error) {
	expiry := time.Now().Add(ttl)
	claims := channelClaims{
		Channel: channelName,
		UID:     strconv.FormatUint(uint64(uid), 10),
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// Verify parses and validates a minted token, returning its channel.
func (i *Issuer) Verify(tokenString string) (string, error) {
	claims := &channelClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Channel, nil
}

// RegisterRoutes mounts the issuer's wire contract: GET /health and
// POST /token.
func (i *Issuer) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/token", func(c *gin.Context) {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ChannelName == "" {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
			return
		}
		ttl := time.Duration(req.ExpireSeconds) * time.Second
		if ttl <= 0 {
			ttl = time.Hour
		}
		signed, expiry, err := i.Mint(req.ChannelName, req.UID, req.Role, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("token signing failed", "SIGNING_FAILED"))
			return
		}
		c.JSON(http.StatusOK, TokenResponse{
			Token:       signed,
			AppID:       i.appID,
			ChannelName: req.ChannelName,
			UID:         req.UID,
			ExpireTime:  expiry.Unix(),
		})
	})
}
