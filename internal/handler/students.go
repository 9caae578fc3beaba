package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/student-api/backend/internal/authz"
	"github.com/student-api/backend/internal/model"
	"github.com/student-api/backend/internal/service"
)

type StudentHandler struct {
	svc *service.StudentService
}

func NewStudentHandler(svc *service.StudentService) *StudentHandler {
	return &StudentHandler{svc: svc}
}

// GetAll godoc
// @Summary List all students
// @Tags students
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Student
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/all [get]
func (h *StudentHandler) GetAll(c *gin.Context) {
	students, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeStudentError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// GetPassed godoc
// @Summary List students with a passing grade
// @Tags students
// @Produce json
// @Success 200 {array} model.Student
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/passed [get]
func (h *StudentHandler) GetPassed(c *gin.Context) {
	students, err := h.svc.Passed(c.Request.Context())
	if err != nil {
		writeStudentError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// GetAverageGrade godoc
// @Summary Average grade across all students
// @Tags students
// @Produce json
// @Success 200 {object} model.AverageGradeResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/average-grade [get]
func (h *StudentHandler) GetAverageGrade(c *gin.Context) {
	avg, err := h.svc.AverageGrade(c.Request.Context())
	if err != nil {
		writeStudentError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AverageGradeResponse{AverageGrade: avg})
}

// GetByID godoc
// @Summary Get a student
// @Description Students may read only their own record. Admins may read any.
// @Tags students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Success 200 {object} model.Student
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/{id} [get]
func (h *StudentHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	student, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeStudentError(c, err)
		return
	}

	user := GetAuthUser(c)
	if user == nil {
		writeUnauthorized(c)
		return
	}
	decision := authz.OwnerOrAdmin(authz.Claims{Subject: user.Subject, Role: user.Role}, id)
	if !decision.Allowed() {
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "forbidden"})
		return
	}

	c.JSON(http.StatusOK, student)
}

// Create godoc
// @Summary Add a student
// @Tags students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.StudentRequest true "Student"
// @Success 201 {object} model.Student
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /api/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req model.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStudentBindError(c, err)
		return
	}

	student, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeStudentError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/students/%d", student.ID))
	c.JSON(http.StatusCreated, student)
}

// Update godoc
// @Summary Update a student's name, age and grade
// @Tags students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param request body model.StudentRequest true "Student"
// @Success 200 {object} model.Student
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req model.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStudentBindError(c, err)
		return
	}

	student, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		writeStudentError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

// Delete godoc
// @Summary Delete a student
// @Tags students
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Success 204
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeStudentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int, bool) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: fmt.Sprintf("Not accepted ID %s", raw), Code: "Students.Invalid"})
		return 0, false
	}
	return id, true
}

func writeStudentError(c *gin.Context, err error) {
	appErr, ok := model.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
		return
	}
	status := authStatus(appErr.Type)
	if appErr.Type == model.ErrorNotFound {
		status = http.StatusNotFound
	}
	c.JSON(status, model.ErrorResponse{Error: appErr.Description, Code: appErr.Code})
}

// writeStudentBindError reports tag violations with the same body the service
// uses for invalid data; malformed JSON stays a generic invalid request.
func writeStudentBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid student data.", Code: "Students.Invalid"})
		return
	}
	writeInvalidRequest(c)
}
