package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Decode != nil && s.deps.Login.GetCredential != nil
}

func (s Service) Login(ctx context.Context, in LoginInput) LoginResult {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, in RefreshInput) RefreshResult {
	return RunRefresh(ctx, in, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, in LogoutInput) (LogoutResult, error) {
	return RunLogout(ctx, in, s.deps.Logout)
}

func (s Service) Authenticate(ctx context.Context, token string) AuthenticateResult {
	return RunAuthenticate(ctx, token, s.deps.Authenticate)
}
