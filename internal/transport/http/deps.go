package http

import (
	"github.com/jobman-auth/internal/application/auth"
	"github.com/jobman-auth/internal/transport/http/middleware"
)

// Deps holds the collaborators the router needs.
type Deps struct {
	AuthService auth.Service
	Verifier    middleware.TokenVerifier
}
