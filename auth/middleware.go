package auth

import (
	"context"
	"strings"
	"sync"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const participantKey = "participant"

// Directory receives the display details of every authenticated participant.
type Directory interface {
	UpsertParticipant(ctx context.Context, participant models.Participant) error
}

// Gate authenticates requests and keeps the participant directory in step
// with the claims it sees.
type Gate struct {
	verifier  *Verifier
	directory Directory
	log       *zap.Logger

	seen sync.Map // participant id -> models.Participant
}

func NewGate(verifier *Verifier, directory Directory, log *zap.Logger) *Gate {
	return &Gate{verifier: verifier, directory: directory, log: log.Named("auth")}
}

// Authenticate verifies a token and records the participant it names.
func (g *Gate) Authenticate(ctx context.Context, token string) (models.Participant, error) {
	claims, err := g.verifier.Parse(token)
	if err != nil {
		return models.Participant{}, err
	}
	participant := claims.Participant()
	g.record(ctx, participant)
	return participant, nil
}

// RequireParticipant rejects requests without a valid bearer token.
func (g *Gate) RequireParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abort(c, apperrors.New(apperrors.KindUnauthenticated, "missing bearer token"))
			return
		}
		participant, err := g.Authenticate(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(participantKey, participant)
		c.Next()
	}
}

// ParticipantFrom returns the participant stored by RequireParticipant.
func ParticipantFrom(c *gin.Context) (models.Participant, bool) {
	v, ok := c.Get(participantKey)
	if !ok {
		return models.Participant{}, false
	}
	p, ok := v.(models.Participant)
	return p, ok
}

func (g *Gate) record(ctx context.Context, participant models.Participant) {
	if prev, ok := g.seen.Load(participant.ID); ok && prev.(models.Participant) == participant {
		return
	}
	if err := g.directory.UpsertParticipant(ctx, participant); err != nil {
		// not fatal: views fall back to the bare id
		g.log.Warn("failed to record participant",
			zap.String("participant_id", participant.ID),
			zap.Error(err))
		return
	}
	g.seen.Store(participant.ID, participant)
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
		"error": apperrors.Message(err),
		"code":  apperrors.KindOf(err).String(),
	})
}
