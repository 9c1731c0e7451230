package sessionauth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/middleware"
	"github.com/nexustalent/sessionauth/password"
)

type memoryUsers map[string]*sessionauth.UserRecord

func (m memoryUsers) UserByEmail(_ context.Context, email string) (*sessionauth.UserRecord, error) {
	if u, ok := m[email]; ok {
		return u, nil
	}
	return nil, sessionauth.ErrUserNotFound
}

func exampleEngine() *sessionauth.Engine {
	bc, _ := password.NewBcrypt(4)
	hash, _ := bc.Hash("correct horse")

	cfg := sessionauth.DefaultConfig()
	cfg.Codec.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 4

	engine, err := sessionauth.New().
		WithConfig(cfg).
		WithFallbackStore(memoryUsers{
			"ana@example.com": {ID: "u-1", Email: "ana@example.com", PasswordHash: hash, Role: "recruiter"},
		}).
		Build()
	if err != nil {
		panic(err)
	}
	return engine
}

func ExampleEngine_Login() {
	engine := exampleEngine()
	defer engine.Close()

	res, err := engine.Login(context.Background(), "Ana@Example.com", "correct horse")
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}

	claims, err := engine.Verify(res.Token)
	if err != nil {
		fmt.Println("verify failed:", err)
		return
	}
	fmt.Println(claims.SubjectID, claims.Email, claims.Role)

	_, err = engine.Login(context.Background(), "ana@example.com", "wrong")
	fmt.Println(errors.Is(err, sessionauth.ErrInvalidCredentials))
	// Output:
	// u-1 ana@example.com recruiter
	// true
}

func Example_gatekeeper() {
	engine := exampleEngine()
	defer engine.Close()

	gate, err := middleware.FromEngine(engine, nil)
	if err != nil {
		panic(err)
	}
	h := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "page")
	}))

	for _, path := range []string{"/en/blog", "/en/dashboard/recruiter?tab=jobs", "/dashboard"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if loc := rec.Header().Get("Location"); loc != "" {
			fmt.Println(rec.Code, loc)
			continue
		}
		fmt.Println(rec.Code, rec.Body.String())
	}
	// Output:
	// 200 page
	// 307 /en/login?redirect=%2Fen%2Fdashboard%2Frecruiter%3Ftab%3Djobs
	// 307 /pt/login?redirect=%2Fdashboard
}
