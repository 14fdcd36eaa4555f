package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dreamColumns = "id, user_id, title, narrative, date_dreamed, mood_rating, emotions_json, people_json, settings_json, privacy, created_at, updated_at"

func scanDream(row interface{ Scan(...any) error }) (*Dream, error) {
	var (
		d        Dream
		mood     sql.NullInt64
		emotions string
		people   string
		settings string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.Narrative, &d.DateDreamed, &mood,
		&emotions, &people, &settings, &d.Privacy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if mood.Valid {
		v := int(mood.Int64)
		d.MoodRating = &v
	}
	d.Emotions = unmarshalList(emotions)
	d.People = unmarshalList(people)
	d.Settings = unmarshalList(settings)
	return &d, nil
}

// CreateDream persists an entry together with its interpretations, opening
// assistant message and clarifying question in a single transaction. Either
// everything is written or nothing is.
func (s *SQLiteStore) CreateDream(dream *Dream, interps []*Interpretation, opening *DreamMessage, question *ClarifyingQuestion) error {
	if dream.ID == "" {
		dream.ID = uuid.NewString()
	}
	now := time.Now()
	dream.CreatedAt = now
	dream.UpdatedAt = now

	emotions, err := marshalList(dream.Emotions)
	if err != nil {
		return err
	}
	people, err := marshalList(dream.People)
	if err != nil {
		return err
	}
	settings, err := marshalList(dream.Settings)
	if err != nil {
		return err
	}
	dream.Emotions = unmarshalList(emotions)
	dream.People = unmarshalList(people)
	dream.Settings = unmarshalList(settings)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var mood any
	if dream.MoodRating != nil {
		mood = *dream.MoodRating
	}
	_, err = tx.Exec(
		"INSERT INTO dreams (id, user_id, title, narrative, date_dreamed, mood_rating, emotions_json, people_json, settings_json, privacy, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		dream.ID, dream.UserID, dream.Title, dream.Narrative, dream.DateDreamed, mood,
		emotions, people, settings, dream.Privacy, dream.CreatedAt, dream.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dream: %w", err)
	}

	for _, interp := range interps {
		interp.DreamID = dream.ID
		interp.CreatedAt = now
		questions, err := marshalList(interp.ReflectionQuestions)
		if err != nil {
			return err
		}
		res, err := tx.Exec(
			"INSERT INTO interpretations (dream_id, angle, summary, reflection_questions_json, created_at, model, prompt_version) VALUES (?, ?, ?, ?, ?, ?, ?)",
			interp.DreamID, interp.Angle, interp.Summary, questions, interp.CreatedAt, interp.Model, interp.PromptVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert interpretation: %w", err)
		}
		interp.ID, _ = res.LastInsertId()
	}

	if opening != nil {
		opening.ID = uuid.NewString()
		opening.DreamID = dream.ID
		opening.CreatedAt = now
		_, err = tx.Exec(
			"INSERT INTO dream_messages (id, dream_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			opening.ID, opening.DreamID, opening.Role, opening.Content, opening.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert opening message: %w", err)
		}
	}

	if question != nil {
		question.DreamID = dream.ID
		question.CreatedAt = now
		res, err := tx.Exec(
			"INSERT INTO clarifying_questions (dream_id, question, answer, created_at) VALUES (?, ?, ?, ?)",
			question.DreamID, question.Question, question.Answer, question.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert clarifying question: %w", err)
		}
		question.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dream creation: %w", err)
	}
	return nil
}

// GetDream returns the entry only when it belongs to the given user.
func (s *SQLiteStore) GetDream(dreamID string, userID int64) (*Dream, error) {
	row := s.db.QueryRow("SELECT "+dreamColumns+" FROM dreams WHERE id = ? AND user_id = ?", dreamID, userID)
	dream, err := scanDream(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dream: %w", err)
	}
	return dream, nil
}

// GetDreamAnyOwner looks an entry up without the ownership filter. Admin
// screens use it; everything user-facing goes through GetDream.
func (s *SQLiteStore) GetDreamAnyOwner(dreamID string) (*Dream, error) {
	row := s.db.QueryRow("SELECT "+dreamColumns+" FROM dreams WHERE id = ?", dreamID)
	dream, err := scanDream(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dream: %w", err)
	}
	return dream, nil
}

func (s *SQLiteStore) listDreams(query string, args ...any) ([]Dream, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dreams: %w", err)
	}
	defer rows.Close()

	var dreams []Dream
	for rows.Next() {
		dream, err := scanDream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dream row: %w", err)
		}
		dreams = append(dreams, *dream)
	}
	return dreams, rows.Err()
}

func (s *SQLiteStore) ListDreamsByUser(userID int64) ([]Dream, error) {
	return s.listDreams("SELECT "+dreamColumns+" FROM dreams WHERE user_id = ? ORDER BY date_dreamed DESC, created_at DESC", userID)
}

// ListPublicDreams feeds the community view.
func (s *SQLiteStore) ListPublicDreams() ([]Dream, error) {
	return s.listDreams("SELECT "+dreamColumns+" FROM dreams WHERE privacy = ? ORDER BY created_at DESC", PrivacyPublic)
}

func (s *SQLiteStore) ListAllDreams() ([]Dream, error) {
	return s.listDreams("SELECT " + dreamColumns + " FROM dreams ORDER BY created_at DESC")
}

func (s *SQLiteStore) UpdateDream(dream *Dream) error {
	emotions, err := marshalList(dream.Emotions)
	if err != nil {
		return err
	}
	people, err := marshalList(dream.People)
	if err != nil {
		return err
	}
	settings, err := marshalList(dream.Settings)
	if err != nil {
		return err
	}
	var mood any
	if dream.MoodRating != nil {
		mood = *dream.MoodRating
	}
	dream.UpdatedAt = time.Now()

	res, err := s.db.Exec(
		"UPDATE dreams SET title = ?, narrative = ?, date_dreamed = ?, mood_rating = ?, emotions_json = ?, people_json = ?, settings_json = ?, privacy = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		dream.Title, dream.Narrative, dream.DateDreamed, mood, emotions, people, settings,
		dream.Privacy, dream.UpdatedAt, dream.ID, dream.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update dream: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDream removes the entry and every dependent row (interpretations,
// clarifying questions, messages, tag and symbol links) in one transaction.
// Shared tags and symbols themselves are left intact.
func (s *SQLiteStore) DeleteDream(dreamID string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Ownership is checked up front so a non-owner cannot strip another
	// user's entry of its dependent rows.
	var one int
	err = tx.QueryRow("SELECT 1 FROM dreams WHERE id = ? AND user_id = ?", dreamID, userID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to verify dream ownership: %w", err)
	}

	// Child rows go first: the schema's foreign keys forbid removing the
	// parent while they exist.
	for _, stmt := range []string{
		"DELETE FROM interpretations WHERE dream_id = ?",
		"DELETE FROM clarifying_questions WHERE dream_id = ?",
		"DELETE FROM dream_messages WHERE dream_id = ?",
		"DELETE FROM dream_tags WHERE dream_id = ?",
		"DELETE FROM dream_symbols WHERE dream_id = ?",
	} {
		if _, err := tx.Exec(stmt, dreamID); err != nil {
			return fmt.Errorf("failed to cascade dream deletion: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM dreams WHERE id = ?", dreamID); err != nil {
		return fmt.Errorf("failed to delete dream: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dream deletion: %w", err)
	}
	return nil
}

// Tag / symbol attachment

func (s *SQLiteStore) AttachTag(dreamID string, tagID int64) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO dream_tags (dream_id, tag_id) VALUES (?, ?)", dreamID, tagID)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// AttachSymbol links a symbol to a dream. At most one link exists per
// (dream, symbol) pair; re-attaching is a no-op.
func (s *SQLiteStore) AttachSymbol(dreamID string, symbolID int64, confidence float64, note string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO dream_symbols (dream_id, symbol_id, confidence, note) VALUES (?, ?, ?, ?)",
		dreamID, symbolID, confidence, note,
	)
	if err != nil {
		return fmt.Errorf("failed to attach symbol: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDreamTags(dreamID string) ([]Tag, error) {
	rows, err := s.db.Query(
		"SELECT t.id, t.name FROM tags t JOIN dream_tags dt ON dt.tag_id = t.id WHERE dt.dream_id = ? ORDER BY t.name ASC",
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dream tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *SQLiteStore) ListDreamSymbols(dreamID string) ([]SymbolLink, error) {
	rows, err := s.db.Query(
		`SELECT sy.id, sy.name, sy.category, sy.description, ds.confidence, ds.note
         FROM symbols sy JOIN dream_symbols ds ON ds.symbol_id = sy.id
         WHERE ds.dream_id = ? ORDER BY sy.name ASC`,
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dream symbols: %w", err)
	}
	defer rows.Close()

	var links []SymbolLink
	for rows.Next() {
		var link SymbolLink
		if err := rows.Scan(&link.Symbol.ID, &link.Symbol.Name, &link.Symbol.Category,
			&link.Symbol.Description, &link.Confidence, &link.Note); err != nil {
			return nil, fmt.Errorf("failed to scan symbol row: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Interpretation methods

func (s *SQLiteStore) ListInterpretations(dreamID string) ([]Interpretation, error) {
	rows, err := s.db.Query(
		"SELECT id, dream_id, angle, summary, reflection_questions_json, created_at, model, prompt_version FROM interpretations WHERE dream_id = ? ORDER BY id ASC",
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query interpretations: %w", err)
	}
	defer rows.Close()

	var interps []Interpretation
	for rows.Next() {
		var (
			interp    Interpretation
			questions string
		)
		if err := rows.Scan(&interp.ID, &interp.DreamID, &interp.Angle, &interp.Summary,
			&questions, &interp.CreatedAt, &interp.Model, &interp.PromptVersion); err != nil {
			return nil, fmt.Errorf("failed to scan interpretation row: %w", err)
		}
		interp.ReflectionQuestions = unmarshalList(questions)
		interps = append(interps, interp)
	}
	return interps, rows.Err()
}

// Message methods

func (s *SQLiteStore) CreateMessage(msg *DreamMessage) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()

	_, err := s.db.Exec(
		"INSERT INTO dream_messages (id, dream_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.DreamID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessagesByDream returns the full thread, oldest first. rowid breaks ties
// between messages written within the same request.
func (s *SQLiteStore) GetMessagesByDream(dreamID string) ([]DreamMessage, error) {
	rows, err := s.db.Query(
		"SELECT id, dream_id, role, content, created_at FROM dream_messages WHERE dream_id = ? ORDER BY created_at ASC, rowid ASC",
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []DreamMessage
	for rows.Next() {
		var msg DreamMessage
		if err := rows.Scan(&msg.ID, &msg.DreamID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetLastNMessages returns the newest n messages of the thread, still oldest
// first, so chat context reads can stop pulling the whole history.
func (s *SQLiteStore) GetLastNMessages(dreamID string, n int) ([]DreamMessage, error) {
	rows, err := s.db.Query(
		"SELECT id, dream_id, role, content, created_at FROM dream_messages WHERE dream_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		dreamID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []DreamMessage
	for rows.Next() {
		var msg DreamMessage
		if err := rows.Scan(&msg.ID, &msg.DreamID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clarifying question methods

func (s *SQLiteStore) CreateClarifyingQuestion(q *ClarifyingQuestion) error {
	q.CreatedAt = time.Now()
	res, err := s.db.Exec(
		"INSERT INTO clarifying_questions (dream_id, question, answer, created_at) VALUES (?, ?, ?, ?)",
		q.DreamID, q.Question, q.Answer, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clarifying question: %w", err)
	}
	q.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListClarifyingQuestions(dreamID string) ([]ClarifyingQuestion, error) {
	rows, err := s.db.Query(
		"SELECT id, dream_id, question, answer, created_at FROM clarifying_questions WHERE dream_id = ? ORDER BY id ASC",
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query clarifying questions: %w", err)
	}
	defer rows.Close()

	var questions []ClarifyingQuestion
	for rows.Next() {
		var q ClarifyingQuestion
		if err := rows.Scan(&q.ID, &q.DreamID, &q.Question, &q.Answer, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan clarifying question row: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// AnswerClarifyingQuestion records the user's answer. The join enforces that
// the question belongs to one of the user's own dreams.
func (s *SQLiteStore) AnswerClarifyingQuestion(questionID, userID int64, answer string) error {
	res, err := s.db.Exec(
		`UPDATE clarifying_questions SET answer = ?
         WHERE id = ? AND dream_id IN (SELECT id FROM dreams WHERE user_id = ?)`,
		answer, questionID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to answer clarifying question: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
