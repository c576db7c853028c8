package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDirectory struct {
	mu      sync.Mutex
	upserts []models.Participant
}

func (d *recordingDirectory) UpsertParticipant(_ context.Context, p models.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upserts = append(d.upserts, p)
	return nil
}

var alice = models.Participant{ID: "alice", DisplayName: "Alice Planner", Role: models.RoleOrganizer}

func TestVerifier_RoundTrip(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret", time.Hour)

	token, err := v.IssueToken(alice)
	req.NoError(err)

	claims, err := v.Parse(token)
	req.NoError(err)
	req.Equal(alice, claims.Participant())
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret", time.Hour)

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Parse("  ")
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("other secret", func(t *testing.T) {
		token, err := NewVerifier("other", time.Hour).IssueToken(alice)
		require.NoError(t, err)
		_, err = v.Parse(token)
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			ParticipantID:  "alice",
			StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
		})
		signed, err := token.SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = v.Parse(signed)
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
		require.Equal(t, "token expired", apperrors.Message(err))
	})

	t.Run("no participant", func(t *testing.T) {
		token, err := v.IssueToken(models.Participant{})
		require.NoError(t, err)
		_, err = v.Parse(token)
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})
}

func TestGate_RequireParticipant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := require.New(t)

	verifier := NewVerifier("secret", time.Hour)
	directory := &recordingDirectory{}
	gate := NewGate(verifier, directory, zap.NewNop())

	r := gin.New()
	r.GET("/me", gate.RequireParticipant(), func(c *gin.Context) {
		p, ok := ParticipantFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.JSONEq(`{"error":"missing bearer token","code":"unauthenticated"}`, rec.Body.String())

	token, err := verifier.IssueToken(alice)
	req.NoError(err)
	for i := 0; i < 3; i++ {
		request := httptest.NewRequest(http.MethodGet, "/me", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, request)
		req.Equal(http.StatusOK, rec.Code)
	}
	req.JSONEq(`{"id":"alice","displayName":"Alice Planner","role":"organizer"}`, rec.Body.String())
	req.Equal([]models.Participant{alice}, directory.upserts)
}
