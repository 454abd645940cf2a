// Package auth provides access-token handling and authorisation for the
// tour guide dashboard.
//
// Tokens are HS256 JWTs carrying a role and an optional has_control flag.
// Roles map statically to permissions such as read:robots or
// control:robots; admin holds every permission. Moving the robot or starting
// a tour also requires has_control, which only one robot operator holds at a
// time.
package auth
