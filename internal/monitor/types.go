package monitor

// Credential is the login used for every host in one poll.
// It is supplied per call and never stored by the registry.
type Credential struct {
	Username string
	Password string
}

// StatusRow maps column name to value for one line of script output.
type StatusRow map[string]string

// HostResult is the outcome of fetching status from a single host.
type HostResult struct {
	Hostname string      `json:"hostname"`
	Status   []StatusRow `json:"status"`
	Success  bool        `json:"success"`

	// Message explains a failure. It is logged, not serialized.
	Message string `json:"-"`
	// Columns preserves header order for table rendering.
	Columns []string `json:"-"`
}

// PollResult holds one HostResult per requested host, in request order.
type PollResult []HostResult

// Succeeded returns how many hosts reported successfully.
func (r PollResult) Succeeded() int {
	n := 0
	for _, h := range r {
		if h.Success {
			n++
		}
	}
	return n
}

// Failed returns the results whose fetch did not succeed.
func (r PollResult) Failed() []HostResult {
	var out []HostResult
	for _, h := range r {
		if !h.Success {
			out = append(out, h)
		}
	}
	return out
}

func failedResult(hostname, message string) HostResult {
	return HostResult{
		Hostname: hostname,
		Status:   []StatusRow{},
		Success:  false,
		Message:  message,
	}
}
