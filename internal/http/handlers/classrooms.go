package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/classroom"
	"github.com/sjc1990app/server/internal/model"
	"go.uber.org/zap"
)

// ClassroomHandler handles the /classrooms endpoints
type ClassroomHandler struct {
	classrooms *classroom.Service
	log        *zap.Logger
}

// NewClassroomHandler creates a new classroom handler
func NewClassroomHandler(classrooms *classroom.Service, log *zap.Logger) *ClassroomHandler {
	return &ClassroomHandler{classrooms: classrooms, log: log}
}

type classroomView struct {
	ClassroomID string `json:"classroomId"`
	Year        int    `json:"year,omitempty"`
	Grade       string `json:"grade,omitempty"`
	Section     string `json:"section,omitempty"`
	DisplayName string `json:"displayName"`
	TeacherName string `json:"teacherName,omitempty"`
}

func toClassroomView(c model.Classroom) classroomView {
	return classroomView{
		ClassroomID: c.ID,
		Year:        c.Year,
		Grade:       c.Grade,
		Section:     c.Section,
		DisplayName: c.DisplayName,
		TeacherName: c.TeacherName,
	}
}

type classroomsResponse struct {
	Classrooms []classroomView `json:"classrooms"`
	Count      int             `json:"count"`
}

type memberView struct {
	UserID          string `json:"userId"`
	Name            string `json:"name"`
	ProfilePhotoURL string `json:"profilePhotoUrl,omitempty"`
	Bio             string `json:"bio,omitempty"`
	AddedAt         string `json:"addedAt"`
}

type membersResponse struct {
	Members   []memberView  `json:"members"`
	Count     int           `json:"count"`
	Classroom classroomView `json:"classroom"`
}

// HandleList handles GET /classrooms?year=
func (h *ClassroomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var year *int
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, r, h.log, apperr.BadRequest("Invalid year parameter"))
			return
		}
		year = &y
	}

	classrooms, err := h.classrooms.ListClassrooms(r.Context(), year)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	resp := classroomsResponse{Classrooms: make([]classroomView, 0, len(classrooms))}
	for _, c := range classrooms {
		resp.Classrooms = append(resp.Classrooms, toClassroomView(c))
	}
	resp.Count = len(resp.Classrooms)
	respondJSON(w, h.log, http.StatusOK, resp)
}

// HandleMembers handles GET /classrooms/{classroomId}/members
func (h *ClassroomHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	c, members, err := h.classrooms.GetClassroomMembers(r.Context(), chi.URLParam(r, "classroomId"))
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	resp := membersResponse{
		Members:   make([]memberView, 0, len(members)),
		Classroom: toClassroomView(c),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, memberView{
			UserID:          m.AccountID.String(),
			Name:            m.Name,
			ProfilePhotoURL: m.PhotoURL,
			Bio:             m.Bio,
			AddedAt:         m.AddedAt.UTC().Format(time.RFC3339),
		})
	}
	resp.Count = len(resp.Members)
	respondJSON(w, h.log, http.StatusOK, resp)
}
