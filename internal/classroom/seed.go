package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
)

// seedRecord is one entry of the classroom seed file
type seedRecord struct {
	ClassroomID string `json:"classroomId"`
	Year        int    `json:"year"`
	Grade       string `json:"grade"`
	Section     string `json:"section"`
	DisplayName string `json:"displayName"`
	TeacherName string `json:"teacherName"`
}

func (r seedRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClassroomID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Year, validation.Min(1900), validation.Max(2100)),
	)
}

// SeedFromFile upserts the classrooms listed in a JSON array file and returns how many were written
func SeedFromFile(ctx context.Context, classrooms repo.ClassroomRepo, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var records []seedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	now := time.Now().UTC()
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("seed record %d: %w", i, err)
		}
		err := classrooms.Upsert(ctx, model.Classroom{
			ID:          r.ClassroomID,
			Year:        r.Year,
			Grade:       r.Grade,
			Section:     r.Section,
			DisplayName: r.DisplayName,
			TeacherName: r.TeacherName,
			CreatedAt:   now,
		})
		if err != nil {
			return 0, fmt.Errorf("seed classroom %s: %w", r.ClassroomID, err)
		}
	}
	return len(records), nil
}
