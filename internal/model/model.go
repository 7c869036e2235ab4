package model

import "time"

type Student struct {
	ID        string
	EscolaID  *string
	Name      string
	Codigo    string
	AnoLetivo *string
	Turma     *string
	Age       *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Credential struct {
	StudentID    string
	Codigo       string
	PasswordHash string
	CreatedAt    time.Time
}

type Profile struct {
	StudentID string
	Name      string
	Role      string
	Codigo    string
	Turma     *string
	UpdatedAt time.Time
}
