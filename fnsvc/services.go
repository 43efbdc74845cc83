package fnsvc

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// Services is the explicitly constructed dependency context passed to the
// handlers. Clients are initialized lazily behind get-or-create accessors and
// reused for the life of the process; re-initialization after a failed
// attempt is safe.
type Services struct {
	projectID string

	app  *firebase.App
	fs   *firestore.Client
	auth *auth.Client
}

func NewServices(projectID string) *Services {
	return &Services{projectID: projectID}
}

func (s *Services) App(ctx context.Context) (*firebase.App, error) {
	if s.app == nil {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: s.projectID})
		if err != nil {
			return nil, fmt.Errorf("while initializing firebase app: %w", err)
		}
		s.app = app
	}
	return s.app, nil
}

func (s *Services) Firestore(ctx context.Context) (*firestore.Client, error) {
	if s.fs == nil {
		app, err := s.App(ctx)
		if err != nil {
			return nil, err
		}
		fs, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("while initializing firestore client: %w", err)
		}
		s.fs = fs
	}
	return s.fs, nil
}

func (s *Services) Auth(ctx context.Context) (*auth.Client, error) {
	if s.auth == nil {
		app, err := s.App(ctx)
		if err != nil {
			return nil, err
		}
		ac, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("while initializing auth client: %w", err)
		}
		s.auth = ac
	}
	return s.auth, nil
}
