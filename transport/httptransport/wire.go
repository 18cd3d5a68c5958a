package httptransport

// Wire types for the tracker server's JSON contract. Dates are always
// YYYY-MM-DD strings.

// mantraJSON is one counter as the server represents it.
type mantraJSON struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Target *int   `json:"target"`
}

// mantrasResponse is the body of GET /api/mantras/{date}.
type mantrasResponse struct {
	Date    string       `json:"date"`
	Mantras []mantraJSON `json:"mantras"`
}

// setMantraRequest is the body of PUT /api/mantras.
type setMantraRequest struct {
	Name  string `json:"name"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// incrementMantraRequest is the body of POST /api/mantras/increment.
type incrementMantraRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// activityJSON is one checklist activity as the server represents it.
type activityJSON struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
	Completed   bool   `json:"completed"`
}

// activitiesResponse is the body of GET /api/activities/{date}.
type activitiesResponse struct {
	Date       string         `json:"date"`
	Activities []activityJSON `json:"activities"`
}

// setActivityRequest is the body of PUT /api/activities.
type setActivityRequest struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}
