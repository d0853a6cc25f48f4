package demoserver

import "net/http"

// CookieDef defines a cookie to be set.
type CookieDef struct {
	Name     string
	Value    string
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// PageDefinition is one page of the demo site. Body is an HTML fragment
// rendered inside the shared layout.
type PageDefinition struct {
	Path        string
	Title       string
	Description string
	Body        string
	// Cookies returns the cookies the page sets at a given level.
	Cookies func(Level) []CookieDef
	// LoginRequired pages redirect to /login when hardened.
	LoginRequired bool
}

// leftoverFiles are files a careless deployment leaves in the web root.
// They follow the level of the home page: served when weak, forbidden when
// partial and absent when hardened.
var leftoverFiles = map[string]string{
	"/.env":      "APP_ENV=production\nAPP_KEY=base64:ZGVtby1rZXk=\nDB_PASSWORD=demo-password\n",
	"/.git/HEAD": "ref: refs/heads/main\n",
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		homePage(),
		loginPage(),
		adminPage(),
		contactPage(),
		aboutPage(),
	}
}

// securityHeaders returns the response headers every page sends at level.
func securityHeaders(level Level) map[string]string {
	switch level {
	case LevelHardened:
		return map[string]string{
			"Content-Security-Policy":   "default-src 'self'; frame-ancestors 'none'",
			"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
			"X-Frame-Options":           "DENY",
			"X-Content-Type-Options":    "nosniff",
			"Referrer-Policy":           "strict-origin-when-cross-origin",
		}
	case LevelPartial:
		return map[string]string{
			"X-Frame-Options":        "SAMEORIGIN",
			"X-Content-Type-Options": "nosniff",
			"Server":                 "nginx",
		}
	default:
		return map[string]string{
			"Server":                      "Apache/2.4.29 (Ubuntu)",
			"X-Powered-By":                "PHP/7.2.24",
			"Access-Control-Allow-Origin": "*",
		}
	}
}

// sessionCookie is set by every page that keeps a session.
func sessionCookie(name, value string) func(Level) []CookieDef {
	return func(level Level) []CookieDef {
		c := CookieDef{Name: name, Value: value, Path: "/"}
		switch level {
		case LevelHardened:
			c.HttpOnly, c.Secure, c.SameSite = true, true, http.SameSiteStrictMode
		case LevelPartial:
			c.HttpOnly = true
		}
		return []CookieDef{c}
	}
}

func homePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Title:       "Home",
		Description: "Landing page with navigation and a tracking cookie",
		Body: `<h1>Welcome to the Demo Shop</h1>
<p>Browse our catalogue or sign in to manage your orders.</p>
<script src="/static/app.js"></script>`,
		Cookies: sessionCookie("visitor_id", "v_1f2e3d"),
	}
}

func loginPage() PageDefinition {
	return PageDefinition{
		Path:        "/login",
		Title:       "Login",
		Description: "Password form posting over plain HTTP",
		Body: `<h1>Sign in</h1>
<form method="POST" action="/login">
    <label>Username <input type="text" name="username"></label>
    <label>Password <input type="password" name="password"></label>
    <button type="submit">Sign in</button>
</form>`,
		Cookies: sessionCookie("session_id", "sess_abc123"),
	}
}

func adminPage() PageDefinition {
	return PageDefinition{
		Path:          "/admin",
		LoginRequired: true,
		Title:         "Admin",
		Description:   "Administrative login with a hidden field",
		Body: `<h1>Administration</h1>
<form method="POST" action="/admin">
    <input type="hidden" name="next" value="/admin/dashboard">
    <label>Admin user <input type="text" name="user"></label>
    <label>Admin password <input type="password" name="pass" autocomplete="current-password"></label>
    <button type="submit">Enter</button>
</form>`,
		Cookies: sessionCookie("admin_session", "adm_9f8e7d"),
	}
}

func contactPage() PageDefinition {
	return PageDefinition{
		Path:        "/contact",
		Title:       "Contact",
		Description: "Contact form without credentials",
		Body: `<h1>Contact us</h1>
<form method="POST" action="/contact">
    <label>Email <input type="email" name="email"></label>
    <label>Message <textarea name="message"></textarea></label>
    <button type="submit">Send</button>
</form>`,
	}
}

func aboutPage() PageDefinition {
	return PageDefinition{
		Path:        "/about",
		Title:       "About",
		Description: "Static content page",
		Body:        `<h1>About</h1><p>The Demo Shop exists to be scanned.</p>`,
	}
}
