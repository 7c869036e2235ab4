package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/model"
)

var ErrCodigoTaken = errors.New("codigo already registered")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetStudentByCodigo(ctx context.Context, codigo string) (model.Student, model.Credential, error) {
	var student model.Student
	var cred model.Credential
	row := s.pool.QueryRow(ctx, `
		SELECT st.id, st.escola_id, st.name, st.codigo, st.ano_letivo, st.turma, st.age, st.created_at, st.updated_at,
		       c.student_id, c.codigo, c.password_hash, c.created_at
		FROM students st
		JOIN student_credentials c ON c.student_id = st.id
		WHERE c.codigo = $1
	`, codigo)
	err := row.Scan(
		&student.ID,
		&student.EscolaID,
		&student.Name,
		&student.Codigo,
		&student.AnoLetivo,
		&student.Turma,
		&student.Age,
		&student.CreatedAt,
		&student.UpdatedAt,
		&cred.StudentID,
		&cred.Codigo,
		&cred.PasswordHash,
		&cred.CreatedAt,
	)
	return student, cred, err
}

func (s *Store) GetStudentByID(ctx context.Context, studentID string) (model.Student, error) {
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, escola_id, name, codigo, ano_letivo, turma, age, created_at, updated_at
		FROM students
		WHERE id = $1
	`, studentID)
	err := row.Scan(
		&student.ID,
		&student.EscolaID,
		&student.Name,
		&student.Codigo,
		&student.AnoLetivo,
		&student.Turma,
		&student.Age,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	return student, err
}

func (s *Store) GetProfile(ctx context.Context, studentID string) (model.Profile, error) {
	var profile model.Profile
	row := s.pool.QueryRow(ctx, `
		SELECT student_id, name, role, codigo, turma, updated_at
		FROM student_profiles
		WHERE student_id = $1
	`, studentID)
	err := row.Scan(
		&profile.StudentID,
		&profile.Name,
		&profile.Role,
		&profile.Codigo,
		&profile.Turma,
		&profile.UpdatedAt,
	)
	return profile, err
}

// CreateStudent inserts the student, credential and profile rows in one
// transaction. The codigo UNIQUE constraint is the only uniqueness check.
func (s *Store) CreateStudent(ctx context.Context, student model.Student, passwordHash string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO students (id, escola_id, name, codigo, ano_letivo, turma, age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, student.ID, student.EscolaID, student.Name, student.Codigo, student.AnoLetivo, student.Turma, student.Age, student.CreatedAt, student.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO student_credentials (student_id, codigo, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, student.ID, student.Codigo, passwordHash, student.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO student_profiles (student_id, name, role, codigo, turma, updated_at)
		VALUES ($1, $2, 'student', $3, $4, $5)
	`, student.ID, student.Name, student.Codigo, student.Turma, student.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) DeleteStudent(ctx context.Context, studentID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCodigoTaken
	}
	return err
}
