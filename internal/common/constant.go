package common

// RefreshTokenCookieName is the cookie that carries the raw refresh secret
// between the browser and the HTTP transport.
const RefreshTokenCookieName = "refresh_token"

// AuthorizationHeaderName carries "Bearer <access token>" on HTTP requests.
const AuthorizationHeaderName = "Authorization"
