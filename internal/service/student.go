package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/student-api/backend/internal/db"
	"github.com/student-api/backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	passingGrade = 50

	codeStudentsNotFound = "Students.NotFound"
	codeStudentsInvalid  = "Students.Invalid"
	codeStudentsConflict = "Students.Conflict"
	codeStudentsProblem  = "Students.Problem"
)

type StudentService struct {
	repo   StudentRepository
	hash   func(password string) (string, error)
	logger *slog.Logger
}

func NewStudentService(repo StudentRepository, logger *slog.Logger) *StudentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentService{
		repo:   repo,
		hash:   HashPassword,
		logger: logger.With("component", "students"),
	}
}

// HashPassword bcrypt-hashes a plaintext password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *StudentService) List(ctx context.Context) ([]model.Student, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.problem(ctx, "list students failed", err)
	}
	if len(students) == 0 {
		return nil, model.NotFound(codeStudentsNotFound, "No Students Found!")
	}
	return students, nil
}

func (s *StudentService) Passed(ctx context.Context) ([]model.Student, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.problem(ctx, "list students failed", err)
	}

	passed := []model.Student{}
	for _, st := range students {
		if st.Grade >= passingGrade {
			passed = append(passed, st)
		}
	}
	if len(passed) == 0 {
		return nil, model.NotFound(codeStudentsNotFound, "No Students Passed")
	}
	return passed, nil
}

// AverageGrade returns the mean grade rounded to two decimal places.
func (s *StudentService) AverageGrade(ctx context.Context) (float64, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		return 0, s.problem(ctx, "list students failed", err)
	}
	if len(students) == 0 {
		return 0, model.NotFound(codeStudentsNotFound, "No students found.")
	}

	sum := decimal.Zero
	for _, st := range students {
		sum = sum.Add(decimal.NewFromInt(int64(st.Grade)))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(students)))).Round(2)
	return avg.InexactFloat64(), nil
}

func (s *StudentService) Get(ctx context.Context, id int) (*model.Student, error) {
	if id < 1 {
		return nil, model.Validation(codeStudentsInvalid, fmt.Sprintf("Not accepted ID %d", id))
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}
	return student, nil
}

func (s *StudentService) Create(ctx context.Context, req model.StudentRequest) (*model.Student, error) {
	if err := validateStudent(req); err != nil {
		return nil, err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = model.RoleStudent
	}
	if role != model.RoleStudent && role != model.RoleAdmin {
		return nil, model.Validation(codeStudentsInvalid, "Invalid student data.")
	}

	student := &model.Student{
		Name:  req.Name,
		Age:   req.Age,
		Grade: req.Grade,
		Email: strings.TrimSpace(req.Email),
		Role:  role,
	}
	if req.Password != "" {
		hash, err := s.hash(req.Password)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, model.Validation(codeStudentsInvalid, "Invalid student data.")
		}
		if err != nil {
			return nil, s.problem(ctx, "hash password failed", err)
		}
		student.PasswordHash = hash
	}

	created, err := s.repo.Create(ctx, student)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return nil, model.Conflict(codeStudentsConflict, "Email already registered")
		}
		return nil, s.problem(ctx, "create student failed", err)
	}

	s.logger.InfoContext(ctx, "student created", "student_id", created.ID)
	return created, nil
}

// Update replaces name, age and grade. Email, role and credentials are left as is.
func (s *StudentService) Update(ctx context.Context, id int, req model.StudentRequest) (*model.Student, error) {
	if id < 1 {
		return nil, model.Validation(codeStudentsInvalid, "Invalid student data.")
	}
	if err := validateStudent(req); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}

	student.Name = req.Name
	student.Age = req.Age
	student.Grade = req.Grade
	if err := s.repo.Save(ctx, student); err != nil {
		return nil, s.lookupError(ctx, id, err)
	}

	s.logger.InfoContext(ctx, "student updated", "student_id", id)
	return student, nil
}

func (s *StudentService) Delete(ctx context.Context, id int) error {
	if id < 1 {
		return model.Validation(codeStudentsInvalid, fmt.Sprintf("Not accepted ID %d", id))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.lookupError(ctx, id, err)
	}
	s.logger.InfoContext(ctx, "student deleted", "student_id", id)
	return nil
}

// studentValidator reads the same binding tags gin checks on the way in, so
// callers that skip the HTTP layer get identical rules.
var studentValidator = newBindingValidator()

func newBindingValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

func validateStudent(req model.StudentRequest) error {
	if err := studentValidator.Struct(req); err != nil {
		return model.Validation(codeStudentsInvalid, "Invalid student data.")
	}
	// Not expressible as tags: blank names and the byte-length bcrypt limit.
	if strings.TrimSpace(req.Name) == "" || len(req.Password) > model.MaxPasswordBytes {
		return model.Validation(codeStudentsInvalid, "Invalid student data.")
	}
	return nil
}

func (s *StudentService) lookupError(ctx context.Context, id int, err error) error {
	if db.IsNotFound(err) {
		return model.NotFound(codeStudentsNotFound, fmt.Sprintf("Student with ID %d not found.", id))
	}
	return s.problem(ctx, "student lookup failed", err)
}

func (s *StudentService) problem(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg, "error", err)
	return model.Problem(codeStudentsProblem, "An unexpected error occurred")
}
