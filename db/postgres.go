package db

import (
	"context"
	"errors"
	"time"

	"eventflex_back_end_go/apperrors"
	"eventflex_back_end_go/models"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

const conversationColumns = `id, participant_low, participant_high, latest_message_id, created_at, updated_at`

const messageColumns = `id, seq, conversation_id, sender_id, content, COALESCE(client_message_id, ''), created_at`

// PostgresStore implements the conversation, message and participant
// repositories on top of a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertParticipant(ctx context.Context, participant models.Participant) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO participants (id, display_name, role)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET display_name = EXCLUDED.display_name, role = EXCLUDED.role, updated_at = NOW()`,
		participant.ID, participant.DisplayName, participant.Role)
	return classify(err, "upserting participant")
}

func (s *PostgresStore) GetParticipants(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	found := make(map[string]models.Participant, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, display_name, role FROM participants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(err, "querying participants")
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Role); err != nil {
			return nil, classify(err, "scanning participant row")
		}
		found[p.ID] = p
	}
	return found, classify(rows.Err(), "iterating participant rows")
}

func (s *PostgresStore) FindConversationByPair(ctx context.Context, pair [2]string) (models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations
	WHERE participant_low = $1 AND participant_high = $2`, pair[0], pair[1])
	c, err := scanConversation(row)
	return c, classify(err, "finding conversation")
}

// InsertConversation relies on conversations_pair_unique: a concurrent insert
// for the same pair surfaces as apperrors.ErrConflict.
func (s *PostgresStore) InsertConversation(ctx context.Context, conversation models.Conversation) (models.Conversation, error) {
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
	INSERT INTO conversations (id, participant_low, participant_high, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	RETURNING `+conversationColumns,
		conversation.ID, conversation.ParticipantIDs[0], conversation.ParticipantIDs[1])
	c, err := scanConversation(row)
	return c, classify(err, "inserting conversation")
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}
	return c, classify(err, "getting conversation")
}

func (s *PostgresStore) ListConversationsFor(ctx context.Context, participantID string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+conversationColumns+` FROM conversations
	WHERE participant_low = $1 OR participant_high = $1
	ORDER BY updated_at DESC, id`, participantID)
	if err != nil {
		return nil, classify(err, "querying conversations")
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, classify(err, "scanning conversation row")
		}
		conversations = append(conversations, c)
	}
	return conversations, classify(rows.Err(), "iterating conversation rows")
}

// AppendMessage locks the conversation row so appends to one conversation are
// serialized: createdAt never goes backwards and the client id check cannot race.
func (s *PostgresStore) AppendMessage(ctx context.Context, message models.Message) (models.Message, bool, error) {
	created := false
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var low, high string
		var updatedAt time.Time
		err := tx.QueryRow(ctx, `SELECT participant_low, participant_high, updated_at
		FROM conversations WHERE id = $1 FOR UPDATE`, message.ConversationID).Scan(&low, &high, &updatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.New(apperrors.KindNotFound, "conversation not found")
		}
		if err != nil {
			return err
		}
		if message.SenderID != low && message.SenderID != high {
			return apperrors.New(apperrors.KindForbidden, "sender is not a participant of this conversation")
		}

		if message.ClientMessageID != "" {
			row := tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND sender_id = $2 AND client_message_id = $3`,
				message.ConversationID, message.SenderID, message.ClientMessageID)
			existing, err := scanMessage(row)
			if err == nil {
				message = existing
				return nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
		}

		if message.ID == uuid.Nil {
			message.ID = uuid.New()
		}
		err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, client_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST(clock_timestamp(), $6::timestamptz))
		RETURNING seq, created_at`,
			message.ID, message.ConversationID, message.SenderID, message.Text,
			nullString(message.ClientMessageID), updatedAt,
		).Scan(&message.Seq, &message.CreatedAt)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE conversations SET latest_message_id = $2, updated_at = $3 WHERE id = $1`,
			message.ConversationID, message.ID, message.CreatedAt); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return models.Message{}, false, classify(err, "appending message")
	}
	return message, created, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, apperrors.New(apperrors.KindNotFound, "message not found")
	}
	return m, classify(err, "getting message")
}

func (s *PostgresStore) GetMessages(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	found := make(map[uuid.UUID]models.Message, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1::uuid[])`, keys)
	if err != nil {
		return nil, classify(err, "querying messages")
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify(err, "scanning message row")
		}
		found[m.ID] = m
	}
	return found, classify(rows.Err(), "iterating message rows")
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return nil, classify(err, "checking conversation")
	}
	if !exists {
		return nil, apperrors.New(apperrors.KindNotFound, "conversation not found")
	}

	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, classify(err, "querying messages")
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify(err, "scanning message row")
		}
		messages = append(messages, m)
	}
	return messages, classify(rows.Err(), "iterating message rows")
}

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var c models.Conversation
	var latest uuid.NullUUID
	err := row.Scan(&c.ID, &c.ParticipantIDs[0], &c.ParticipantIDs[1], &latest, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Conversation{}, err
	}
	if latest.Valid {
		id := latest.UUID
		c.LatestMessageID = &id
	}
	return c, nil
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.SenderID, &m.Text, &m.ClientMessageID, &m.CreatedAt)
	return m, err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// classify maps driver errors onto the apperrors taxonomy. Anything that is
// not a server-side rejection is treated as the store being unavailable.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.Wrap(apperrors.KindNotFound, "not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperrors.Wrap(apperrors.KindConflict, op+": duplicate key", err)
		case checkViolation:
			return apperrors.Wrap(apperrors.KindInvalidArgument, op+": constraint violated", err)
		default:
			return apperrors.Wrap(apperrors.KindInternal, op, err)
		}
	}
	return apperrors.Wrap(apperrors.KindTransient, op, err)
}
