// Package httpapi serves the mcloones terminal API.
//
// One process holds one [mcloones.Manager], so the screen routes (/me,
// /rewards, /manager) act for whoever is signed in at this terminal. Other
// clients reach /api/* with a bearer access token instead; those routes check
// the token and the server session behind it and never touch the Manager.
//
// # Routes
//
//	POST /auth/login           {"email","password"}
//	POST /auth/signup          {"email","password","role","full_name"}
//	POST /auth/confirm         {"token"}
//	POST /auth/logout
//	POST /auth/oauth/start     {"provider"}
//	GET  /auth/oauth/callback  ?state=&code=
//	GET  /me
//	POST /profile/refresh
//	GET  /rewards/balance
//	GET  /manager/employees
//	POST /manager/bucks        {"employee_id","amount","reason"}
//	POST /manager/revoke       {"user_id"}
//	GET  /api/me
package httpapi
