package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/dgrijalva/jwt-go"
)

// Claims is what the credential issuer signs for a marketplace account.
type Claims struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	jwt.StandardClaims
}

func (c Claims) Participant() models.Participant {
	name := c.Name
	if name == "" {
		name = c.ParticipantID
	}
	return models.Participant{ID: c.ParticipantID, DisplayName: name, Role: c.Role}
}

type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs an HS256 token for participant. Real credentials come from
// the account service; this is used by tooling and tests.
func (v *Verifier) IssueToken(participant models.Participant) (string, error) {
	now := time.Now()
	claims := Claims{
		ParticipantID: participant.ID,
		Name:          participant.DisplayName,
		Role:          participant.Role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt: now.Unix(),
		},
	}
	if v.ttl > 0 {
		claims.ExpiresAt = now.Add(v.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// Parse verifies tokenString and returns its claims. Every failure is
// reported as apperrors.ErrUnauthenticated.
func (v *Verifier) Parse(tokenString string) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, apperrors.New(apperrors.KindUnauthenticated, "missing token")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, apperrors.Wrap(apperrors.KindUnauthenticated, "token expired", err)
		}
		return Claims{}, apperrors.Wrap(apperrors.KindUnauthenticated, "invalid token", err)
	}
	if strings.TrimSpace(claims.ParticipantID) == "" {
		return Claims{}, apperrors.New(apperrors.KindUnauthenticated, "token carries no participant")
	}
	return claims, nil
}
