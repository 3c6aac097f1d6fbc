package devserver

// DefaultOperators are the accounts cmd/goconsole-devserver seeds.
func DefaultOperators() []Operator {
	return []Operator{
		{
			ID:     "op-admin",
			Name:   "Ada Admin",
			Email:  "admin@example.com",
			Role:   "admin",
			Secret: "admin-secret",
			Attributes: map[string]any{
				"team": "platform",
			},
		},
		{
			ID:     "op-viewer",
			Name:   "Vic Viewer",
			Email:  "viewer@example.com",
			Role:   "viewer",
			Secret: "viewer-secret",
		},
	}
}

// Seed adds every operator in ops.
func (s *Server) Seed(ops []Operator) error {
	for _, op := range ops {
		if _, err := s.AddOperator(op); err != nil {
			return err
		}
	}
	return nil
}
