package httpapi

import (
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	actorContextKey = "booking_actor"
	bearerPrefix    = "Bearer "
	// AdminRole marks a token holder as a platform administrator.
	AdminRole = "admin"
)

var (
	errMissingToken   = errors.New("missing bearer token")
	errInvalidToken   = errors.New("invalid bearer token")
	errMissingSubject = errors.New("token has no subject")
)

// Claims is the JWT payload the API accepts. The subject is the user id.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type tokenVerifier struct {
	signingKey []byte
	issuer     string
}

func newTokenVerifier(cfg Config) tokenVerifier {
	return tokenVerifier{signingKey: []byte(cfg.JWTSigningKey), issuer: cfg.JWTIssuer}
}

func (verifier tokenVerifier) parse(raw string) (*Claims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if verifier.issuer != "" {
		options = append(options, jwt.WithIssuer(verifier.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return verifier.signingKey, nil
	}, options...)
	if err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

// requireActor resolves the bearer token into a booking.Actor stored on the gin context.
func (handler *httpHandler) requireActor(ctx *gin.Context) {
	header := ctx.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, bearerPrefix)
	if !found || strings.TrimSpace(raw) == "" {
		handler.abortUnauthenticated(ctx, errMissingToken)
		return
	}
	claims, err := handler.verifier.parse(strings.TrimSpace(raw))
	if err != nil {
		handler.abortUnauthenticated(ctx, err)
		return
	}
	userID, err := booking.NewUserID(claims.Subject)
	if err != nil {
		handler.abortUnauthenticated(ctx, errMissingSubject)
		return
	}
	ctx.Set(actorContextKey, booking.NewActor(userID, claims.Role == AdminRole))
	ctx.Next()
}

func actorFrom(ctx *gin.Context) booking.Actor {
	value, _ := ctx.Get(actorContextKey)
	actor, _ := value.(booking.Actor)
	return actor
}
