package guard

// Decision is what a guard does with a request
type Decision int

const (
	// Render lets the wrapped page handle the request
	Render Decision = iota
	// RedirectLogin sends the request to the login page
	RedirectLogin
	// RedirectHome sends the request to the home page
	RedirectHome
	// ShowLoading renders the loading placeholder instead of the page
	ShowLoading
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	case ShowLoading:
		return "show_loading"
	default:
		return "unknown"
	}
}

// Protected decides access to a page that needs a signed in user. With
// adminOnly set the user must also hold the admin role; a missing user
// counts as non admin.
func Protected(state State, adminOnly bool) Decision {
	switch {
	case state.IsLoading():
		return ShowLoading
	case !state.IsAuthenticated():
		return RedirectLogin
	case adminOnly && !state.IsAdmin():
		return RedirectHome
	default:
		return Render
	}
}

// Public decides access to a page only anonymous visitors may see
func Public(state State) Decision {
	switch {
	case state.IsLoading():
		return ShowLoading
	case state.IsAuthenticated():
		return RedirectHome
	default:
		return Render
	}
}
