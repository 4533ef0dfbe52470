// Package auth gates the logistics portal: it checks credentials, issues
// signed session tokens and decides, per request, whether a path may be
// served.
//
// Sign in:
//   - Auther.Authenticate checks an email and password against a
//     CredentialStore. Unknown emails and wrong passwords cost the same bcrypt
//     comparison and are reported to users as a single CredentialsSignin code.
//   - Auther.Login issues an HS256 token through TokenService. Tokens carry the
//     identity, iat and exp; a token is valid while now is strictly before exp.
//
// Route guard:
//   - GuardRoutes classifies paths into Public, AuthPage and Protected using
//     whole path segments, and Decide maps a class plus session state to
//     Allow, RedirectLogin or RedirectDashboard.
//   - Guard runs classify, read session and decide as ordered stages. The
//     middleware/guardware package adapts it to go-router.
//
// Activity sinks:
//   - ActivitySink receives login, logout, registration and rejection events.
//     Sinks run best-effort (errors are logged) and never see passwords or raw
//     tokens.
package auth
