package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/classroom"
	"github.com/sjc1990app/server/internal/middleware"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/profile"
	"go.uber.org/zap"
)

// UserHandler handles the /users/{userId} endpoints. Every route runs behind
// RequireSelfOrAdmin, which resolves the subject id.
type UserHandler struct {
	profiles   *profile.Service
	classrooms *classroom.Service
	log        *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(profiles *profile.Service, classrooms *classroom.Service, log *zap.Logger) *UserHandler {
	return &UserHandler{
		profiles:   profiles,
		classrooms: classrooms,
		log:        log,
	}
}

type updateProfileRequest struct {
	Name *string `json:"name"`
	Bio  *string `json:"bio"`
}

type updateProfileResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type photoUploadRequest struct {
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type photoUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	PhotoKey  string `json:"photoKey"`
	ExpiresIn int    `json:"expiresIn"`
}

type completePhotoRequest struct {
	PhotoKey string `json:"photoKey"`
}

type completePhotoResponse struct {
	Message  string `json:"message"`
	PhotoURL string `json:"photoUrl"`
}

type assignClassroomsRequest struct {
	ClassroomIDs []string `json:"classroomIds"`
}

type assignClassroomsResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type userClassroomView struct {
	classroomView
	Role    string `json:"role"`
	AddedAt string `json:"addedAt"`
}

type userClassroomsResponse struct {
	Classrooms []userClassroomView `json:"classrooms"`
	Count      int                 `json:"count"`
}

// HandleUpdateProfile handles PUT /users/{userId}/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	account, err := h.profiles.UpdateProfile(r.Context(), subject, profile.ProfileUpdate{Name: req.Name, Bio: req.Bio})
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, updateProfileResponse{
		Message: "Profile updated successfully",
		UserID:  account.ID.String(),
	})
}

// HandleRequestPhotoUpload handles POST /users/{userId}/profile-photo
func (h *UserHandler) HandleRequestPhotoUpload(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req photoUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	upload, err := h.profiles.RequestPhotoUpload(r.Context(), subject, req.ContentType, req.FileSize)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, photoUploadResponse{
		UploadURL: upload.UploadURL,
		PhotoKey:  upload.PhotoKey,
		ExpiresIn: upload.ExpiresIn,
	})
}

// HandleCompletePhotoUpload handles PUT /users/{userId}/profile-photo-complete
func (h *UserHandler) HandleCompletePhotoUpload(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req completePhotoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	account, err := h.profiles.CompletePhotoUpload(r.Context(), subject, req.PhotoKey)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, completePhotoResponse{
		Message:  "Profile photo updated successfully",
		PhotoURL: account.PhotoURL,
	})
}

// HandleGetPreferences handles GET /users/{userId}/preferences
func (h *UserHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	prefs, err := h.profiles.GetPreferences(r.Context(), subject)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, prefs)
}

// HandleUpdatePreferences handles PUT /users/{userId}/preferences
func (h *UserHandler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	var patch model.PreferencesPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	if _, err := h.profiles.UpdatePreferences(r.Context(), subject, patch); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, messageResponse{Message: "Preferences updated successfully"})
}

// HandleAssignClassrooms handles POST /users/{userId}/classrooms
func (h *UserHandler) HandleAssignClassrooms(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req assignClassroomsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	count, err := h.classrooms.AssignClassrooms(r.Context(), subject, req.ClassroomIDs)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}
	respondJSON(w, h.log, http.StatusCreated, assignClassroomsResponse{
		Message: "Classrooms assigned successfully",
		Count:   count,
	})
}

// HandleListUserClassrooms handles GET /users/{userId}/classrooms
func (h *UserHandler) HandleListUserClassrooms(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	classrooms, err := h.classrooms.GetUserClassrooms(r.Context(), subject)
	if err != nil {
		respondWithError(w, r, h.log, err)
		return
	}

	resp := userClassroomsResponse{Classrooms: make([]userClassroomView, 0, len(classrooms))}
	for _, c := range classrooms {
		resp.Classrooms = append(resp.Classrooms, userClassroomView{
			classroomView: toClassroomView(c.Classroom),
			Role:          string(c.Role),
			AddedAt:       c.AddedAt.UTC().Format(time.RFC3339),
		})
	}
	resp.Count = len(resp.Classrooms)
	respondJSON(w, h.log, http.StatusOK, resp)
}

func (h *UserHandler) subject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.GetSubjectID(r.Context())
	if !ok {
		respondWithError(w, r, h.log, apperr.Unauthorized("Missing authorization header"))
		return uuid.Nil, false
	}
	return id, true
}
