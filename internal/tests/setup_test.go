package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sjc1990app/server/internal/approval"
	"github.com/sjc1990app/server/internal/auth"
	"github.com/sjc1990app/server/internal/classroom"
	"github.com/sjc1990app/server/internal/db"
	httphandler "github.com/sjc1990app/server/internal/http"
	"github.com/sjc1990app/server/internal/http/handlers"
	"github.com/sjc1990app/server/internal/middleware"
	"github.com/sjc1990app/server/internal/notify"
	"github.com/sjc1990app/server/internal/profile"
	"github.com/sjc1990app/server/internal/repo"
	"github.com/sjc1990app/server/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret = "test-jwt-secret-at-least-32-characters-long"
	testOTPSalt   = "test-otp-salt"
	testAppName   = "sjc1990app"
	testCDN       = "https://cdn.example.com"

	// AdminPhone is bootstrapped with the admin role on verification
	AdminPhone = "+85290000001"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// testServer holds an httptest server wired like cmd/api, with recording fakes
// for the notifier and the photo bucket.
type testServer struct {
	Server   *httptest.Server
	Repos    repo.Repos
	Notifier *notify.Recorder
	Objects  *storage.MemoryStore
	Registry *prometheus.Registry
}

// serverOptions tunes a test server
type serverOptions struct {
	RegisterLimit int
	VerifyLimit   int
	PhoneLimit    int
}

func newTestServer(t *testing.T, repos repo.Repos, opts serverOptions) *testServer {
	t.Helper()
	if opts.RegisterLimit == 0 {
		opts.RegisterLimit = 1000
	}
	if opts.VerifyLimit == 0 {
		opts.VerifyLimit = 1000
	}
	if opts.PhoneLimit == 0 {
		opts.PhoneLimit = 1000
	}

	log := zap.NewNop()
	recorder := &notify.Recorder{}
	objects := storage.NewMemoryStore(testCDN)
	registry := prometheus.NewRegistry()
	notifier := notify.Instrument(recorder, registry)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	jwtService := auth.NewJWTService(testJWTSecret)
	verification := auth.NewVerificationService(repos.Accounts, repos.Challenges, notifier, jwtService, auth.VerificationOptions{
		Salt:        testOTPSalt,
		AppName:     testAppName,
		IsAdmin:     func(number string) bool { return number == AdminPhone },
		SendLimiter: middleware.NewRateLimiter(10*time.Minute, opts.PhoneLimit, stop),
	}, log)
	approvals := approval.NewService(repos.Accounts, repos.Approvals, notifier, testAppName, log)
	profiles := profile.NewService(repos.Accounts, repos.Preferences, objects, log)
	classrooms := classroom.NewService(repos.Accounts, repos.Classrooms, repos.Memberships, log)

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Routes: httphandler.Routes(httphandler.Handlers{
			Auth:       handlers.NewAuthHandler(verification, approvals, log),
			Users:      handlers.NewUserHandler(profiles, classrooms, log),
			Classrooms: handlers.NewClassroomHandler(classrooms, log),
		}, httphandler.Limiters{
			Register: middleware.NewRateLimiter(10*time.Minute, opts.RegisterLimit, stop),
			Verify:   middleware.NewRateLimiter(10*time.Minute, opts.VerifyLimit, stop),
		}),
		Tokens:   jwtService,
		Log:      log,
		Registry: registry,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{
		Server:   server,
		Repos:    repos,
		Notifier: recorder,
		Objects:  objects,
		Registry: registry,
	}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

// LastCodeFor returns the verification code most recently sent to number
func (s *testServer) LastCodeFor(t *testing.T, number string) string {
	t.Helper()
	msgs := s.Notifier.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To == number && msgs[i].Kind == notify.KindVerificationCode {
			m := codePattern.FindStringSubmatch(msgs[i].Body)
			require.Len(t, m, 2, "verification SMS must carry a 6-digit code")
			return m[1]
		}
	}
	t.Fatalf("no verification code sent to %s", number)
	return ""
}

// openTestDB connects to DATABASE_URL and applies the embedded migrations
func openTestDB(t *testing.T, databaseURL string) *sql.DB {
	t.Helper()
	database, err := db.Open(context.Background(), databaseURL, zap.NewNop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	return database
}

// TruncateTables removes all rows for a clean test state
func TruncateTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, `TRUNCATE TABLE memberships, classrooms, preferences,
		verification_challenges, approval_requests, accounts CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
