package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/quizdeck/quizdeck/internal/app"
	"github.com/quizdeck/quizdeck/internal/config"
	"github.com/stretchr/testify/require"
)

// apiClient wraps an http.Client with a cookie jar and the double-submit
// CSRF token, mimicking a browser session.
type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func newAPIClient(t *testing.T, baseURL string) *apiClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	c := &apiClient{
		t:    t,
		base: baseURL,
		http: &http.Client{Jar: jar},
	}

	// Fetch the CSRF token once; the cookie lands in the jar.
	status, body := c.do(http.MethodGet, "/api/v1/auth/csrf", nil)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	require.NotEmpty(t, data.CSRFToken)
	c.csrf = data.CSRFToken

	return c
}

// envelope mirrors the response shape of every endpoint
type envelope struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func (c *apiClient) do(method, path string, payload any) (int, envelope) {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (c *apiClient) requireData(method, path string, payload any, wantStatus int, out any) {
	c.t.Helper()

	status, env := c.do(method, path, payload)
	require.Equal(c.t, wantStatus, status, "unexpected status for %s %s: %+v", method, path, env.Error)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
}

func (c *apiClient) requireErrorCode(method, path string, payload any, wantStatus int, wantCode string) {
	c.t.Helper()

	status, env := c.do(method, path, payload)
	require.Equal(c.t, wantStatus, status)
	require.NotNil(c.t, env.Error)
	require.Equal(c.t, wantCode, env.Error.Code)
	require.NotEmpty(c.t, env.Error.RequestID)
}

type sessionData struct {
	User struct {
		ID    uuid.UUID `json:"id"`
		Name  string    `json:"name"`
		Email string    `json:"email"`
	} `json:"user"`
	RefreshToken string `json:"refresh_token"`
}

func (c *apiClient) signup(name, email, password string) sessionData {
	c.t.Helper()

	var session sessionData
	c.requireData(http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, http.StatusCreated, &session)
	require.Equal(c.t, email, session.User.Email)
	require.NotEmpty(c.t, session.RefreshToken)
	return session
}

// fakeGenerator serves the question generation endpoint with a fixed tree
func fakeGenerator(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/generate" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			QuestionCount int `json:"question_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		questions := make([]map[string]any, req.QuestionCount)
		for i := range questions {
			questions[i] = map[string]any{
				"title": fmt.Sprintf("Generated question %d", i+1),
				"answers": []map[string]any{
					{"title": "Right", "is_correct": true},
					{"title": "Wrong", "is_correct": false},
				},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"questions": questions})
	}))
}

func TestEndToEndFlow(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	genServer := fakeGenerator(t)
	t.Cleanup(genServer.Close)

	cfg := &config.Config{
		Env:                "dev",
		HTTPAddr:           ":0",
		BaseURL:            "http://localhost",
		JWTSecret:          "e2e-test-secret",
		LogLevel:           "error",
		RateLimitRPM:       120,
		GeneratorURL:       genServer.URL,
		GeneratorTimeoutMS: 5000,
		SessionDays:        7,
		RestoreCodeTTLM:    30,
		AuditRetentionDays: 90,
	}

	server := httptest.NewServer(app.NewRouter(pool, cfg))
	t.Cleanup(server.Close)

	alice := newAPIClient(t, server.URL)
	bob := newAPIClient(t, server.URL)

	// Unauthenticated requests are rejected.
	alice.requireErrorCode(http.MethodGet, "/api/v1/orgs/", nil, http.StatusUnauthorized, "unauthorized")

	aliceSession := alice.signup("Alice", "alice@example.com", "password-one")
	bobSession := bob.signup("Bob", "bob@example.com", "password-two")

	// A mutating request without the CSRF header is refused.
	noCSRF := alice.csrf
	alice.csrf = ""
	alice.requireErrorCode(http.MethodPost, "/api/v1/orgs/", map[string]string{"title": "x", "color": "#fff"}, http.StatusForbidden, "forbidden")
	alice.csrf = noCSRF

	// Duplicate email conflicts.
	status, env := alice.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"name": "Alice Again", "email": "alice@example.com", "password": "password-one",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "conflict", env.Error.Code)

	// Alice creates an organization.
	var created struct {
		Org struct {
			ID       uuid.UUID `json:"id"`
			Title    string    `json:"title"`
			AuthorID uuid.UUID `json:"author_id"`
		} `json:"org"`
	}
	alice.requireData(http.MethodPost, "/api/v1/orgs/", map[string]string{
		"title":       "Quiz Night",
		"description": "Friday trivia",
		"color":       "#1a2b3c",
	}, http.StatusCreated, &created)
	orgID := created.Org.ID
	require.Equal(t, aliceSession.User.ID, created.Org.AuthorID)
	orgPath := "/api/v1/orgs/" + orgID.String()

	// Bob is not a member yet.
	bob.requireErrorCode(http.MethodGet, orgPath+"/tests", nil, http.StatusForbidden, "forbidden")

	// Alice invites Bob with READ permission.
	alice.requireData(http.MethodPost, orgPath+"/members", map[string]any{
		"user_id":    bobSession.User.ID,
		"permission": "READ",
	}, http.StatusCreated, nil)

	// The invitation shows up in Bob's pending bucket.
	var bobOrgs struct {
		Orgs struct {
			Admin   []json.RawMessage `json:"admin"`
			Member  []json.RawMessage `json:"member"`
			Pending []json.RawMessage `json:"pending"`
		} `json:"orgs"`
	}
	bob.requireData(http.MethodGet, "/api/v1/orgs/", nil, http.StatusOK, &bobOrgs)
	require.Len(t, bobOrgs.Orgs.Pending, 1)
	require.Empty(t, bobOrgs.Orgs.Member)

	// Bob accepts.
	bob.requireData(http.MethodPut, orgPath+"/members/approvement", map[string]string{
		"approvement": "ACCEPTED",
	}, http.StatusOK, nil)

	bob.requireData(http.MethodGet, "/api/v1/orgs/", nil, http.StatusOK, &bobOrgs)
	require.Len(t, bobOrgs.Orgs.Member, 1)
	require.Empty(t, bobOrgs.Orgs.Pending)

	// Alice creates a test with a supplied question tree.
	var testCreated struct {
		Test struct {
			ID        uuid.UUID `json:"id"`
			Questions []struct {
				ID      uuid.UUID `json:"id"`
				Answers []struct {
					ID        uuid.UUID `json:"id"`
					IsCorrect bool      `json:"is_correct"`
				} `json:"answers"`
			} `json:"questions"`
		} `json:"test"`
	}
	alice.requireData(http.MethodPost, orgPath+"/tests", map[string]any{
		"title": "Geography Basics",
		"theme": "geography",
		"questions": []map[string]any{
			{
				"title": "Capital of France?",
				"answers": []map[string]any{
					{"title": "Paris", "is_correct": true},
					{"title": "Lyon", "is_correct": false},
				},
			},
			{
				"title": "Capital of Spain?",
				"answers": []map[string]any{
					{"title": "Madrid", "is_correct": true},
					{"title": "Barcelona", "is_correct": false},
				},
			},
		},
	}, http.StatusCreated, &testCreated)
	testID := testCreated.Test.ID
	require.Len(t, testCreated.Test.Questions, 2)

	// Generation path: the question tree comes from the generator service.
	var generated struct {
		Test struct {
			ID        uuid.UUID `json:"id"`
			Questions []struct {
				Title string `json:"title"`
			} `json:"questions"`
		} `json:"test"`
	}
	alice.requireData(http.MethodPost, orgPath+"/tests", map[string]any{
		"title":    "Machine Made",
		"theme":    "history",
		"generate": map[string]any{"question_count": 3, "language": "en"},
	}, http.StatusCreated, &generated)
	require.Len(t, generated.Test.Questions, 3)
	require.Equal(t, "Generated question 1", generated.Test.Questions[0].Title)

	// Supplying both questions and generate is rejected.
	alice.requireErrorCode(http.MethodPost, orgPath+"/tests", map[string]any{
		"title":     "Both",
		"questions": []map[string]any{{"title": "q", "answers": []map[string]any{{"title": "a", "is_correct": true}}}},
		"generate":  map[string]any{"question_count": 2},
	}, http.StatusBadRequest, "bad_request")

	// Bob completes the geography test, all answers correct.
	answers := make([]map[string]any, 0, 2)
	for _, q := range testCreated.Test.Questions {
		for _, a := range q.Answers {
			if a.IsCorrect {
				answers = append(answers, map[string]any{"question_id": q.ID, "answer_id": a.ID})
			}
		}
	}
	var completion struct {
		Result struct {
			CorrectAnswers int `json:"correct_answers"`
			TotalQuestions int `json:"total_questions"`
		} `json:"result"`
	}
	bob.requireData(http.MethodPost, "/api/v1/tests/"+testID.String()+"/complete", map[string]any{
		"answers": answers,
	}, http.StatusCreated, &completion)
	require.Equal(t, 2, completion.Result.CorrectAnswers)
	require.Equal(t, 2, completion.Result.TotalQuestions)

	// Completing the same test twice conflicts.
	bob.requireErrorCode(http.MethodPost, "/api/v1/tests/"+testID.String()+"/complete", map[string]any{
		"answers": answers,
	}, http.StatusConflict, "conflict")

	// Bob's completion history has one entry.
	var completionsList struct {
		Completions []struct {
			TestID         uuid.UUID `json:"test_id"`
			CorrectAnswers int       `json:"correct_answers"`
		} `json:"completions"`
	}
	bob.requireData(http.MethodGet, "/api/v1/completions/", nil, http.StatusOK, &completionsList)
	require.Len(t, completionsList.Completions, 1)
	require.Equal(t, testID, completionsList.Completions[0].TestID)

	// Per-user accuracy for the test.
	var points struct {
		Points []struct {
			Label string  `json:"label"`
			Value float64 `json:"value"`
		} `json:"points"`
	}
	alice.requireData(http.MethodGet, "/api/v1/stats/tests/"+testID.String(), nil, http.StatusOK, &points)
	require.Len(t, points.Points, 1)
	require.Equal(t, "Bob", points.Points[0].Label)
	require.InDelta(t, 100, points.Points[0].Value, 1e-9)

	// The untouched generated test yields no data.
	alice.requireErrorCode(http.MethodGet, "/api/v1/stats/tests/"+generated.Test.ID.String(), nil, http.StatusNotFound, "no_data")

	// A READ member cannot delete a test.
	bob.requireErrorCode(http.MethodDelete, orgPath+"/tests/"+testID.String(), nil, http.StatusForbidden, "forbidden")

	// The audit trail records the session's actions.
	var auditEvents struct {
		Events []struct {
			Action string `json:"action"`
		} `json:"events"`
	}
	alice.requireData(http.MethodGet, orgPath+"/audit", nil, http.StatusOK, &auditEvents)
	actions := make(map[string]int)
	for _, e := range auditEvents.Events {
		actions[e.Action]++
	}
	require.Positive(t, actions["org.created"])
	require.Positive(t, actions["org.member_invited"])
	require.Positive(t, actions["test.created"])
	require.Positive(t, actions["test.generated"])
	require.Positive(t, actions["test.completed"])

	// The filter narrows the trail to one action.
	alice.requireData(http.MethodGet, orgPath+"/audit?action=test.completed", nil, http.StatusOK, &auditEvents)
	for _, e := range auditEvents.Events {
		require.Equal(t, "test.completed", e.Action)
	}

	// Refresh rotates the token and keeps the session alive.
	var refreshed sessionData
	bob.requireData(http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": bobSession.RefreshToken,
	}, http.StatusOK, &refreshed)
	require.NotEqual(t, bobSession.RefreshToken, refreshed.RefreshToken)

	// The old token is spent.
	bob.requireErrorCode(http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": bobSession.RefreshToken,
	}, http.StatusUnauthorized, "unauthorized")

	// Logout, then the session cookie no longer works.
	bob.requireData(http.MethodPost, "/api/v1/auth/logout", nil, http.StatusOK, nil)
	bob.requireErrorCode(http.MethodGet, "/api/v1/orgs/", nil, http.StatusUnauthorized, "unauthorized")

	// Login restores access.
	var loggedIn sessionData
	bob.requireData(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "bob@example.com",
		"password": "password-two",
	}, http.StatusOK, &loggedIn)
	require.Equal(t, bobSession.User.ID, loggedIn.User.ID)
	bob.requireData(http.MethodGet, "/api/v1/orgs/", nil, http.StatusOK, nil)
}

func TestPasswordResetFlow(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := &config.Config{
		Env:                "dev",
		BaseURL:            "http://localhost",
		JWTSecret:          "e2e-test-secret",
		LogLevel:           "error",
		RateLimitRPM:       120,
		GeneratorURL:       "http://localhost:1",
		GeneratorTimeoutMS: 1000,
		SessionDays:        7,
		RestoreCodeTTLM:    30,
		AuditRetentionDays: 90,
	}

	server := httptest.NewServer(app.NewRouter(pool, cfg))
	t.Cleanup(server.Close)

	carol := newAPIClient(t, server.URL)
	carol.signup("Carol", "carol@example.com", "original-pass")

	// In dev mode the restoration code rides along in the response.
	var forgot struct {
		Sent bool   `json:"sent"`
		Code string `json:"code"`
	}
	carol.requireData(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{
		"email": "carol@example.com",
	}, http.StatusOK, &forgot)
	require.True(t, forgot.Sent)
	require.NotEmpty(t, forgot.Code)

	// An unknown email gets the same shape without a code.
	var unknown struct {
		Sent bool   `json:"sent"`
		Code string `json:"code"`
	}
	carol.requireData(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	}, http.StatusOK, &unknown)
	require.True(t, unknown.Sent)
	require.Empty(t, unknown.Code)

	carol.requireData(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"email":    "carol@example.com",
		"code":     forgot.Code,
		"password": "brand-new-pass",
	}, http.StatusOK, nil)

	// The code is single-use.
	carol.requireErrorCode(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"email":    "carol@example.com",
		"code":     forgot.Code,
		"password": "another-pass",
	}, http.StatusUnauthorized, "unauthorized")

	// The old password is dead, the new one works.
	carol.requireErrorCode(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "carol@example.com", "password": "original-pass",
	}, http.StatusUnauthorized, "unauthorized")
	carol.requireData(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "carol@example.com", "password": "brand-new-pass",
	}, http.StatusOK, nil)
}
