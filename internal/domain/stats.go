package domain

// DashboardStats aggregates the counters shown on the admin dashboard.
type DashboardStats struct {
	TotalUsers         int `json:"total_users"`
	TotalScholarships  int `json:"total_scholarships"`
	ActiveScholarships int `json:"active_scholarships"`
	CreatedThisMonth   int `json:"created_this_month"`
}
