package db

import (
	"fmt"

	"github.com/student-api/backend/internal/model"
)

type seedStudent struct {
	student  model.Student
	password string
}

var seedStudents = []seedStudent{
	{model.Student{ID: 1, Name: "Ali Ahmed", Age: 20, Grade: 88, Email: "ali.ahmed@example.com", Role: model.RoleAdmin}, "admin123"},
	{model.Student{ID: 2, Name: "Fadi Khalil", Age: 22, Grade: 77, Email: "fadi.Khalil@example.com", Role: model.RoleStudent}, "Password1"},
	{model.Student{ID: 3, Name: "Ola Jabber", Age: 21, Grade: 66, Email: "ola.jabber@example.com", Role: model.RoleStudent}, "Password2"},
	{model.Student{ID: 4, Name: "Alia Maher", Age: 19, Grade: 44, Email: "alia.maher@example.com", Role: model.RoleStudent}, "Password3"},
}

// SeedStudents returns the initial roster with passwords hashed by hash.
func SeedStudents(hash func(password string) (string, error)) ([]model.Student, error) {
	out := make([]model.Student, 0, len(seedStudents))
	for _, s := range seedStudents {
		h, err := hash(s.password)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", s.student.Email, err)
		}
		st := s.student
		st.PasswordHash = h
		out = append(out, st)
	}
	return out, nil
}
