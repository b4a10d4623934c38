package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"noteszone/pkg/logger"
	"noteszone/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrNotFound  = errors.New("note not found")
	ErrNotShared = errors.New("user not shared on note")
)

const noteColumns = `id, title, content, owner_id, created_at, updated_at`

type NoteRepository struct {
	DB *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{DB: db}
}

func (r *NoteRepository) Create(ctx context.Context, ownerID, title, content string) (*store.Note, error) {
	note := &store.Note{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		OwnerID:    ownerID,
		SharedWith: []store.Share{},
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO notes (id, title, content, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`,
		note.ID, note.Title, note.Content, note.OwnerID,
	).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create note for %s: %v", ownerID, err)
		return nil, fmt.Errorf("create note: %w", err)
	}
	return note, nil
}

func (r *NoteRepository) Get(ctx context.Context, id string) (*store.Note, error) {
	note := &store.Note{}
	err := r.DB.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id).
		Scan(&note.ID, &note.Title, &note.Content, &note.OwnerID, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get note %s: %v", id, err)
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	if err := r.loadShares(ctx, []*store.Note{note}); err != nil {
		return nil, err
	}
	return note, nil
}

// ListByOwner returns the notes owned by ownerID, most recently updated first.
func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*store.Note, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM notes WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
}

// ListSharedWith returns the notes carrying a share entry for userID, most recently updated first.
func (r *NoteRepository) ListSharedWith(ctx context.Context, userID string) ([]*store.Note, error) {
	return r.list(ctx, `
		SELECT n.id, n.title, n.content, n.owner_id, n.created_at, n.updated_at
		FROM notes n JOIN note_shares s ON s.note_id = n.id
		WHERE s.user_id = $1
		ORDER BY n.updated_at DESC`, userID)
}

// Update writes the non-nil fields and returns the saved state.
func (r *NoteRepository) Update(ctx context.Context, id string, fields store.NoteFields) (*store.Note, error) {
	result, err := r.DB.ExecContext(ctx,
		`UPDATE notes SET title = COALESCE($2, title), content = COALESCE($3, content), updated_at = GREATEST(NOW(), updated_at) WHERE id = $1`,
		id, fields.Title, fields.Content,
	)
	if err != nil {
		logger.Sugar.Errorf("Failed to update note %s: %v", id, err)
		return nil, fmt.Errorf("update note %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update note %s: %w", id, err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete note %s: %v", id, err)
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetShare adds userID to the note with role, or updates the role in place.
func (r *NoteRepository) SetShare(ctx context.Context, id, userID string, role store.Role) (*store.Note, error) {
	err := r.inTx(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO note_shares (note_id, user_id, role) VALUES ($1, $2, $3)
			ON CONFLICT (note_id, user_id) DO UPDATE SET role = EXCLUDED.role`, id, userID, string(role))
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *NoteRepository) RemoveShare(ctx context.Context, id, userID string) (*store.Note, error) {
	err := r.inTx(ctx, id, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM note_shares WHERE note_id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotShared
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// inTx bumps the note's updated_at and runs fn in the same transaction.
func (r *NoteRepository) inTx(ctx context.Context, id string, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE notes SET updated_at = GREATEST(NOW(), updated_at) WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		logger.Sugar.Errorf("Failed to touch note %s: %v", id, err)
		return fmt.Errorf("touch note %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		if err != nil {
			return fmt.Errorf("touch note %s: %w", id, err)
		}
		return ErrNotFound
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrNotShared) {
			return err
		}
		logger.Sugar.Errorf("Failed to change shares on note %s: %v", id, err)
		return fmt.Errorf("change shares on note %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *NoteRepository) list(ctx context.Context, query string, arg string) ([]*store.Note, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		logger.Sugar.Errorf("Failed to list notes for %s: %v", arg, err)
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []*store.Note{}
	for rows.Next() {
		note := &store.Note{}
		if err := rows.Scan(&note.ID, &note.Title, &note.Content, &note.OwnerID, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if err := r.loadShares(ctx, notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// loadShares fills SharedWith for every note with one query, in share insertion order.
func (r *NoteRepository) loadShares(ctx context.Context, notes []*store.Note) error {
	if len(notes) == 0 {
		return nil
	}
	byID := make(map[string]*store.Note, len(notes))
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		n.SharedWith = []store.Share{}
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.note_id, s.user_id, u.email, s.role
		FROM note_shares s JOIN users u ON u.id = s.user_id
		WHERE s.note_id = ANY($1)
		ORDER BY s.position ASC`, pq.Array(ids))
	if err != nil {
		logger.Sugar.Errorf("Failed to load shares: %v", err)
		return fmt.Errorf("load shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID, role string
		var sh store.Share
		if err := rows.Scan(&noteID, &sh.UserID, &sh.Email, &role); err != nil {
			return fmt.Errorf("scan share: %w", err)
		}
		sh.Role = store.Role(role)
		if n, ok := byID[noteID]; ok {
			n.SharedWith = append(n.SharedWith, sh)
		}
	}
	return rows.Err()
}
