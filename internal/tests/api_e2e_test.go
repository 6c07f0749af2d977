package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
	"github.com/sjc1990app/server/internal/repo/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPhone       = "+85291234567"
	testPhoneSpaced = "+852 9123-4567"
)

// errorResponse matches the error JSON body
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type verifyResponse struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// apiClient sends JSON requests to a test server
type apiClient struct {
	t       *testing.T
	baseURL string
	client  *http.Client
	header  http.Header
}

func newClient(t *testing.T, ts *testServer) *apiClient {
	return &apiClient{t: t, baseURL: ts.BaseURL(), client: ts.Server.Client(), header: http.Header{}}
}

// do sends body as JSON and decodes the response into out when out is non-nil
func (c *apiClient) do(method, path, token string, body, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	for key, values := range c.header {
		req.Header[key] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

// signUp registers and verifies number, returning the verify response
func signUp(t *testing.T, ts *testServer, c *apiClient, number, name string) verifyResponse {
	t.Helper()
	status := c.do(http.MethodPost, "/auth/register", "", map[string]string{"phoneNumber": number, "name": name}, nil)
	require.Equal(t, http.StatusOK, status)

	var verified verifyResponse
	status = c.do(http.MethodPost, "/auth/verify", "", map[string]string{
		"phoneNumber": number,
		"code":        ts.LastCodeFor(t, number),
	}, &verified)
	require.Equal(t, http.StatusCreated, status)
	return verified
}

func seedClassrooms(t *testing.T, repos repo.Repos) {
	t.Helper()
	for _, c := range []model.Classroom{
		{ID: "1985-P4A", Year: 1985, Grade: "P4", Section: "A", DisplayName: "Primary 4A"},
		{ID: "1985-P4B", Year: 1985, Grade: "P4", Section: "B", DisplayName: "Primary 4B"},
		{ID: "1990-S5A", Year: 1990, Grade: "S5", Section: "A", DisplayName: "Secondary 5A", TeacherName: "Mr. Wong"},
	} {
		require.NoError(t, repos.Classrooms.Upsert(context.Background(), c))
	}
}

// runFullFlow exercises registration through classroom membership against repos
func runFullFlow(t *testing.T, repos repo.Repos) {
	ts := newTestServer(t, repos, serverOptions{})
	c := newClient(t, ts)
	seedClassrooms(t, repos)

	t.Run("A_Health", func(t *testing.T) {
		var body map[string]bool
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "", nil, &body))
		assert.True(t, body["ok"])
	})

	// register with separators; the stored number is normalized
	var registered struct {
		Message   string `json:"message"`
		ExpiresIn int    `json:"expiresIn"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": testPhoneSpaced, "name": "Jane"}, &registered))
	assert.Equal(t, "Verification code sent", registered.Message)
	assert.Equal(t, 300, registered.ExpiresIn)

	var verified verifyResponse
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/auth/verify", "",
		map[string]string{"phoneNumber": testPhone, "code": ts.LastCodeFor(t, testPhone)}, &verified))
	assert.Equal(t, string(model.StatusPendingApproval), verified.Status)
	assert.NotEmpty(t, verified.Token)
	assert.NotEmpty(t, verified.ExpiresAt)

	t.Run("B_DuplicateRegistration", func(t *testing.T) {
		var errResp errorResponse
		status := c.do(http.MethodPost, "/auth/register", "", map[string]string{"phoneNumber": testPhone, "name": "Someone Else"}, &errResp)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "CONFLICT", errResp.Error)
	})

	admin := signUp(t, ts, c, AdminPhone, "Admin")

	t.Run("C_AdminOnly", func(t *testing.T) {
		var errResp errorResponse
		status := c.do(http.MethodGet, "/auth/pending-approvals", verified.Token, nil, &errResp)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "FORBIDDEN", errResp.Error)

		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/auth/pending-approvals", "", nil, nil))
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/auth/approve/"+verified.UserID, verified.Token, nil, nil))
	})

	t.Run("D_PendingApprovals", func(t *testing.T) {
		var pending struct {
			Approvals []struct {
				UserID      string `json:"userId"`
				PhoneNumber string `json:"phoneNumber"`
				Name        string `json:"name"`
			} `json:"approvals"`
			Count int `json:"count"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/auth/pending-approvals", admin.Token, nil, &pending))
		require.Equal(t, 2, pending.Count)
		assert.Equal(t, verified.UserID, pending.Approvals[0].UserID, "oldest request first")
		assert.Equal(t, testPhone, pending.Approvals[0].PhoneNumber)
	})

	t.Run("E_Approve", func(t *testing.T) {
		var approved struct {
			Message string `json:"message"`
			UserID  string `json:"userId"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/approve/"+verified.UserID, admin.Token, nil, &approved))
		assert.Equal(t, "User approved successfully", approved.Message)
		assert.Equal(t, verified.UserID, approved.UserID)

		last, ok := ts.Notifier.Last()
		require.True(t, ok)
		assert.Equal(t, testPhone, last.To)
		assert.Contains(t, last.Body, "approved")

		// a second approval fails on the state guard and sends nothing
		sent := len(ts.Notifier.Messages())
		var errResp errorResponse
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/approve/"+verified.UserID, admin.Token, nil, &errResp))
		assert.Equal(t, "BAD_REQUEST", errResp.Error)
		assert.Len(t, ts.Notifier.Messages(), sent)
	})

	t.Run("F_Profile", func(t *testing.T) {
		var updated struct {
			Message string `json:"message"`
			UserID  string `json:"userId"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPut, "/users/"+verified.UserID+"/profile", verified.Token,
			map[string]string{"name": "Jane Chan", "bio": "Class of 1990"}, &updated))
		assert.Equal(t, "Profile updated successfully", updated.Message)

		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPut, "/users/"+verified.UserID+"/profile", verified.Token,
			map[string]string{}, nil))
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodPut, "/users/"+admin.UserID+"/profile", verified.Token,
			map[string]string{"name": "Hijack"}, nil))
	})

	t.Run("G_PhotoUpload", func(t *testing.T) {
		var upload struct {
			UploadURL string `json:"uploadUrl"`
			PhotoKey  string `json:"photoKey"`
			ExpiresIn int    `json:"expiresIn"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/users/"+verified.UserID+"/profile-photo", verified.Token,
			map[string]any{"contentType": "image/png", "fileSize": 2048}, &upload))
		assert.Contains(t, upload.PhotoKey, "profiles/"+verified.UserID+"-")
		assert.Equal(t, 300, upload.ExpiresIn)

		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/users/"+verified.UserID+"/profile-photo", verified.Token,
			map[string]any{"contentType": "image/gif", "fileSize": 2048}, nil))

		completePath := "/users/" + verified.UserID + "/profile-photo-complete"
		assert.Equal(t, http.StatusNotFound, c.do(http.MethodPut, completePath, verified.Token,
			map[string]string{"photoKey": upload.PhotoKey}, nil))

		ts.Objects.Put(upload.PhotoKey, "image/png")
		var completed struct {
			Message  string `json:"message"`
			PhotoURL string `json:"photoUrl"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPut, completePath, verified.Token,
			map[string]string{"photoKey": upload.PhotoKey}, &completed))
		assert.Equal(t, testCDN+"/"+upload.PhotoKey, completed.PhotoURL)
	})

	t.Run("H_Preferences", func(t *testing.T) {
		path := "/users/" + verified.UserID + "/preferences"
		var prefs model.Preferences
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, path, verified.Token, nil, &prefs))
		assert.Equal(t, model.ChannelApp, prefs.PrimaryChannel)
		assert.Equal(t, model.DigestDaily, prefs.DigestFrequency)

		var msg struct {
			Message string `json:"message"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPut, path, verified.Token,
			map[string]any{"digestFrequency": "weekly", "enabledChannels": []string{"app", "sms"}}, &msg))
		assert.Equal(t, "Preferences updated successfully", msg.Message)

		require.Equal(t, http.StatusOK, c.do(http.MethodGet, path, verified.Token, nil, &prefs))
		assert.Equal(t, model.DigestWeekly, prefs.DigestFrequency)
		assert.Equal(t, []model.Channel{model.ChannelApp, model.ChannelSMS}, prefs.EnabledChannels)

		var errResp errorResponse
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPut, path, verified.Token,
			map[string]any{"primaryChannel": "pager"}, &errResp))
		assert.Equal(t, "BAD_REQUEST", errResp.Error)
	})

	t.Run("I_Classrooms", func(t *testing.T) {
		var list struct {
			Classrooms []struct {
				ClassroomID string `json:"classroomId"`
				DisplayName string `json:"displayName"`
			} `json:"classrooms"`
			Count int `json:"count"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/classrooms?year=1985", "", nil, &list))
		assert.Equal(t, 2, list.Count)

		var errResp errorResponse
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/classrooms?year=abc", "", nil, &errResp))
		assert.Equal(t, "Invalid year parameter", errResp.Message)

		path := "/users/" + verified.UserID + "/classrooms"
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, path, verified.Token,
			map[string]any{"classroomIds": []string{"1985-P4A", "1970-P1Z"}}, nil))

		var assigned struct {
			Message string `json:"message"`
			Count   int    `json:"count"`
		}
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, path, verified.Token,
			map[string]any{"classroomIds": []string{"1990-S5A", "1985-P4A"}}, &assigned))
		assert.Equal(t, "Classrooms assigned successfully", assigned.Message)
		assert.Equal(t, 2, assigned.Count)

		var mine struct {
			Classrooms []struct {
				ClassroomID string `json:"classroomId"`
				Role        string `json:"role"`
			} `json:"classrooms"`
			Count int `json:"count"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, path, verified.Token, nil, &mine))
		require.Equal(t, 2, mine.Count)
		assert.Equal(t, "1985-P4A", mine.Classrooms[0].ClassroomID)
		assert.Equal(t, "student", mine.Classrooms[0].Role)

		var members struct {
			Members []struct {
				UserID string `json:"userId"`
				Name   string `json:"name"`
			} `json:"members"`
			Count     int `json:"count"`
			Classroom struct {
				ClassroomID string `json:"classroomId"`
			} `json:"classroom"`
		}
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/classrooms/1990-S5A/members", "", nil, nil))
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/classrooms/1990-S5A/members", admin.Token, nil, &members))
		require.Equal(t, 1, members.Count)
		assert.Equal(t, "Jane Chan", members.Members[0].Name)
		assert.Equal(t, "1990-S5A", members.Classroom.ClassroomID)

		assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/classrooms/nope/members", admin.Token, nil, nil))
	})

	t.Run("J_Reject", func(t *testing.T) {
		other := signUp(t, ts, c, "+85291110000", "Spam")
		var rejected struct {
			Message string `json:"message"`
			UserID  string `json:"userId"`
			Reason  string `json:"reason"`
		}
		require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/reject/"+other.UserID, admin.Token, nil, &rejected))
		assert.Equal(t, "User rejected", rejected.Message)
		assert.Equal(t, "No reason provided", rejected.Reason)

		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/reject/"+other.UserID, admin.Token,
			map[string]string{"reason": "again"}, nil))
	})

	t.Run("K_Metrics", func(t *testing.T) {
		series, err := testutil.GatherAndCount(ts.Registry, "notifications_sent_total")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, series, 3, "verification, approval and rejection outcomes")

		resp, err := c.client.Get(c.baseURL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "http_requests_total")
		assert.Contains(t, string(body), "notifications_sent_total")
	})
}

func TestAPIFlow_InMemory(t *testing.T) {
	runFullFlow(t, memstore.New().Repos())
}

func TestVerify_attemptsExhausted(t *testing.T) {
	ts := newTestServer(t, memstore.New().Repos(), serverOptions{})
	c := newClient(t, ts)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": testPhone, "name": "Jane"}, nil))
	code := ts.LastCodeFor(t, testPhone)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		var errResp errorResponse
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/verify", "",
			map[string]string{"phoneNumber": testPhone, "code": wrong}, &errResp))
		assert.Equal(t, "Invalid verification code", errResp.Message)
	}

	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/verify", "",
		map[string]string{"phoneNumber": testPhone, "code": code}, &errResp))
	assert.Contains(t, errResp.Message, "Maximum verification attempts exceeded")
}

func TestRegister_rateLimited(t *testing.T) {
	ts := newTestServer(t, memstore.New().Repos(), serverOptions{RegisterLimit: 2})
	c := newClient(t, ts)

	for i, number := range []string{"+85291000001", "+85291000002"} {
		assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/register", "",
			map[string]string{"phoneNumber": number, "name": "Jane"}, nil), "request %d", i)
	}
	var errResp errorResponse
	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": "+85291000003", "name": "Jane"}, &errResp))
	assert.Equal(t, "TOO_MANY_REQUESTS", errResp.Error)
}

func TestRegister_sendLimitIgnoresForwardedAddress(t *testing.T) {
	ts := newTestServer(t, memstore.New().Repos(), serverOptions{RegisterLimit: 2, PhoneLimit: 3})
	c := newClient(t, ts)

	statuses := make([]int, 0, 6)
	for i := 1; i <= 6; i++ {
		c.header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		statuses = append(statuses, c.do(http.MethodPost, "/auth/register", "",
			map[string]string{"phoneNumber": testPhone, "name": "Jane"}, nil))
	}
	assert.Equal(t, []int{200, 200, 200, 429, 429, 429}, statuses)
	assert.Len(t, ts.Notifier.Messages(), 3)

	// the cap is per number, not global
	c.header.Set("X-Forwarded-For", "198.51.100.50")
	assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": "+85291000009", "name": "John"}, nil))
}

func TestRegister_badInput(t *testing.T) {
	ts := newTestServer(t, memstore.New().Repos(), serverOptions{})
	c := newClient(t, ts)

	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/register", "", nil, &errResp))
	assert.Equal(t, "Request body is required", errResp.Message)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": "85291234567", "name": "Jane"}, nil))
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/register", "",
		map[string]string{"phoneNumber": testPhone, "name": "  "}, nil))
	assert.Empty(t, ts.Notifier.Messages())
}
