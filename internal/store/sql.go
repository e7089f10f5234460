package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// SQLStore persists the data model in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// One connection: SQLite serializes writers anyway and in-memory
		// databases are per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema, err := migrations.ReadFile("migrations/" + string(s.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func identityColumn(c model.Channel) string {
	switch c {
	case model.ChannelWhatsApp:
		return "whatsapp_id"
	case model.ChannelMessenger:
		return "messenger_id"
	case model.ChannelWeb:
		return "web_id"
	default:
		return "phone"
	}
}

const userColumns = `id, tenant_id, whatsapp_id, messenger_id, phone, web_id, name, email,
	lead_status, lead_score, preferences, objections, notes, created_at, updated_at, last_interaction`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                                     model.User
		whatsapp, messenger, phone, web, name sql.NullString
		email, notes                          sql.NullString
		preferences, objections               string
		lastInteraction                       sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &whatsapp, &messenger, &phone, &web, &name, &email,
		&u.LeadStatus, &u.LeadScore, &preferences, &objections, &notes,
		&u.CreatedAt, &u.UpdatedAt, &lastInteraction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.WhatsAppID, u.MessengerID, u.Phone, u.WebID = whatsapp.String, messenger.String, phone.String, web.String
	u.Name, u.Email, u.Notes = name.String, email.String, notes.String
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	if lastInteraction.Valid {
		u.LastInteraction = lastInteraction.Time.UTC()
	}
	if err := json.Unmarshal([]byte(preferences), &u.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(objections), &u.Objections); err != nil {
		return nil, fmt.Errorf("failed to decode objections: %w", err)
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// FindUserByChannel looks a user up by channel identity.
func (s *SQLStore) FindUserByChannel(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE tenant_id = ? AND ` + identityColumn(channel) + ` = ?`)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, tenantID, externalID))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, err
}

// GetUser returns a user by id.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// CreateUser inserts u unless its identity is taken and returns the owner.
func (s *SQLStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	channel, externalID, ok := primaryIdentity(u)
	if !ok {
		return nil, errors.New("user has no channel identity")
	}

	preferences, err := json.Marshal(nonNilMap(u.Preferences))
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	objections, err := json.Marshal(nonNilSlice(u.Objections))
	if err != nil {
		return nil, fmt.Errorf("failed to encode objections: %w", err)
	}

	query := s.rebind(`INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	_, err = s.db.ExecContext(ctx, query,
		u.ID, u.TenantID, nullString(u.WhatsAppID), nullString(u.MessengerID), nullString(u.Phone), nullString(u.WebID),
		nullString(u.Name), nullString(u.Email), string(u.LeadStatus), u.LeadScore, string(preferences), string(objections),
		nullString(u.Notes), u.CreatedAt.UTC(), u.UpdatedAt.UTC(), nullTime(u.LastInteraction))
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return s.FindUserByChannel(ctx, u.TenantID, channel, externalID)
}

func primaryIdentity(u *model.User) (model.Channel, string, bool) {
	for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelMessenger, model.ChannelVoice, model.ChannelWeb} {
		if id := u.ChannelID(ch); id != "" {
			return ch, id, true
		}
	}
	return "", "", false
}

// TouchUser stamps the last interaction time.
func (s *SQLStore) TouchUser(ctx context.Context, userID string, at time.Time) error {
	query := s.rebind(`UPDATE users SET last_interaction = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, query, at.UTC(), at.UTC(), userID)
}

// SetLeadStatus overwrites a user's lead status.
func (s *SQLStore) SetLeadStatus(ctx context.Context, userID string, status model.LeadStatus, at time.Time) error {
	query := s.rebind(`UPDATE users SET lead_status = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, query, string(status), at.UTC(), userID)
}

func (s *SQLStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

const conversationColumns = `id, tenant_id, user_id, channel, status, started_at, ended_at, last_activity_at, metadata`

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		c        model.Conversation
		endedAt  sql.NullTime
		metadata string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.Channel, &c.Status, &c.StartedAt, &endedAt, &c.LastActivityAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.StartedAt, c.LastActivityAt = c.StartedAt.UTC(), c.LastActivityAt.UTC()
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		c.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &c, nil
}

// LatestActiveConversation returns the most recently active open conversation.
func (s *SQLStore) LatestActiveConversation(ctx context.Context, userID string, channel model.Channel) (*model.Conversation, error) {
	query := s.rebind(`SELECT ` + conversationColumns + ` FROM conversations
		WHERE user_id = ? AND channel = ? AND status = ?
		ORDER BY last_activity_at DESC LIMIT 1`)
	c, err := scanConversation(s.db.QueryRowContext(ctx, query, userID, string(channel), string(model.ConversationActive)))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return c, err
}

// GetConversation returns a conversation by id.
func (s *SQLStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query := s.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	return scanConversation(s.db.QueryRowContext(ctx, query, conversationID))
}

// CreateConversation stores a new conversation.
func (s *SQLStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	metadata, err := json.Marshal(nonNilStrings(c.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	var endedAt sql.NullTime
	if c.EndedAt != nil {
		endedAt = nullTime(*c.EndedAt)
	}

	query := s.rebind(`INSERT INTO conversations (` + conversationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query, c.ID, c.TenantID, c.UserID, string(c.Channel), string(c.Status),
		c.StartedAt.UTC(), endedAt, c.LastActivityAt.UTC(), string(metadata))
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// AppendMessage stores m and bumps its conversation's last activity in one transaction.
func (s *SQLStore) AppendMessage(ctx context.Context, m *model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	at := m.CreatedAt.UTC()
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE conversations
		SET last_activity_at = CASE WHEN last_activity_at < ? THEN ? ELSE last_activity_at END
		WHERE id = ?`), at, at, m.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation activity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return model.ErrNotFound
	}

	var latency, tokens sql.NullInt64
	var modelName sql.NullString
	if m.Metrics != nil {
		latency = sql.NullInt64{Int64: m.Metrics.LatencyMs, Valid: true}
		tokens = sql.NullInt64{Int64: int64(m.Metrics.TokensUsed), Valid: m.Metrics.TokensUsed > 0}
		modelName = nullString(m.Metrics.Model)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO messages
		(id, conversation_id, tenant_id, role, content, created_at, latency_ms, tokens_used, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.ConversationID, m.TenantID, string(m.Role), m.Content, at, latency, tokens, modelName)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return tx.Commit()
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *SQLStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, conversation_id, tenant_id, role, content, created_at,
		latency_ms, tokens_used, model
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`), conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m         model.Message
			latency   sql.NullInt64
			tokens    sql.NullInt64
			modelName sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &m.Role, &m.Content, &m.CreatedAt,
			&latency, &tokens, &modelName); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		if latency.Valid || tokens.Valid || modelName.Valid {
			m.Metrics = &model.MessageMetrics{
				LatencyMs:  latency.Int64,
				TokensUsed: int(tokens.Int64),
				Model:      modelName.String,
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SaveFeedback stores fb if its message belongs to tenantID.
func (s *SQLStore) SaveFeedback(ctx context.Context, tenantID string, fb *model.Feedback) error {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM messages WHERE id = ? AND tenant_id = ?`),
		fb.MessageID, tenantID).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check message: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO feedback
		(id, message_id, rating, feedback_type, comment, corrected_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		fb.ID, fb.MessageID, fb.Rating, string(fb.Type), nullString(fb.Comment), nullString(fb.CorrectedResponse), fb.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// ConversationStats counts tenant activity since the given time.
func (s *SQLStore) ConversationStats(ctx context.Context, tenantID string, since time.Time) (model.ConversationStats, error) {
	var stats model.ConversationStats
	since = since.UTC()

	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM conversations WHERE tenant_id = ? AND started_at >= ?`),
		tenantID, since).Scan(&stats.Conversations); err != nil {
		return stats, fmt.Errorf("failed to count conversations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND created_at >= ?`),
		tenantID, since).Scan(&stats.Messages); err != nil {
		return stats, fmt.Errorf("failed to count messages: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT AVG(latency_ms) FROM messages
		WHERE tenant_id = ? AND created_at >= ? AND role = ? AND latency_ms IS NOT NULL`),
		tenantID, since, string(model.RoleAssistant)).Scan(&avg); err != nil {
		return stats, fmt.Errorf("failed to average latency: %w", err)
	}
	stats.AvgLatencyMs = avg.Float64

	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM users WHERE tenant_id = ? AND last_interaction >= ?`),
		tenantID, since).Scan(&stats.UniqueUsers); err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}
	return stats, nil
}

// LeadCounts groups tenant users by lead status.
func (s *SQLStore) LeadCounts(ctx context.Context, tenantID string) (map[model.LeadStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT lead_status, COUNT(*) FROM users WHERE tenant_id = ? GROUP BY lead_status`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status model.LeadStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan lead count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// LowRated returns assistant replies rated at or below maxRating, newest first.
func (s *SQLStore) LowRated(ctx context.Context, tenantID string, maxRating, limit int) ([]model.LowRatedResponse, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT m.id, m.content, f.rating, f.comment, f.corrected_response, f.created_at
		FROM feedback f JOIN messages m ON m.id = f.message_id
		WHERE m.tenant_id = ? AND m.role = ? AND f.rating <= ?
		ORDER BY f.created_at DESC LIMIT ?`), tenantID, string(model.RoleAssistant), maxRating, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query low rated responses: %w", err)
	}
	defer rows.Close()

	var out []model.LowRatedResponse
	for rows.Next() {
		var r model.LowRatedResponse
		var comment, corrected sql.NullString
		if err := rows.Scan(&r.MessageID, &r.Content, &r.Rating, &comment, &corrected, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan low rated response: %w", err)
		}
		r.Comment, r.CorrectedResponse = comment.String, corrected.String
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountUserMessages counts tenant user messages and how many mention a keyword.
func (s *SQLStore) CountUserMessages(ctx context.Context, tenantID string, keywords []string) (int, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND role = ?`),
		tenantID, string(model.RoleUser)).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to count user messages: %w", err)
	}

	var clauses []string
	args := []any{tenantID, string(model.RoleUser)}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		clauses = append(clauses, "LOWER(content) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}
	if len(clauses) == 0 {
		return total, 0, nil
	}

	var hits int
	query := s.rebind(`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND role = ? AND (` + strings.Join(clauses, " OR ") + `)`)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&hits); err != nil {
		return 0, 0, fmt.Errorf("failed to count escalation hits: %w", err)
	}
	return total, hits, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
