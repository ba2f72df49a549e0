package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Calendars  *CalendarHandler
	Routes     *RouteHandler
	Schedules  *ScheduleHandler
	Trips      *TripHandler
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Calendars != nil {
		mux.HandleFunc("/calendars", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Calendars.List(w, r)
			case http.MethodPost:
				cfg.Calendars.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/calendars/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/calendars/")
			id, sub, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))

			switch sub {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Calendars.Get(w, r)
				case http.MethodPut:
					cfg.Calendars.Update(w, r)
				case http.MethodDelete:
					cfg.Calendars.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case "resolved":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Calendars.Resolve(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Routes != nil {
		mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Routes.List(w, r)
			case http.MethodPost:
				cfg.Routes.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/routes/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/routes/")
			id, sub, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))

			switch sub {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Routes.Get(w, r)
			case "versions":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Routes.CreateVersion(w, r)
			case "versions/active":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Routes.ActiveVersion(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Schedules != nil {
		mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Schedules.List(w, r)
			case http.MethodPost:
				cfg.Schedules.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/schedules/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/schedules/")
			id, sub, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))

			switch {
			case sub == "":
				switch r.Method {
				case http.MethodGet:
					cfg.Schedules.Get(w, r)
				case http.MethodPut:
					cfg.Schedules.Update(w, r)
				case http.MethodDelete:
					cfg.Schedules.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case sub == "materialize":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Schedules.Materialize(w, r)
			case sub == "exceptions":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Schedules.CreateException(w, r)
			case strings.HasPrefix(sub, "exceptions/"):
				date := strings.TrimPrefix(sub, "exceptions/")
				if date == "" || strings.Contains(date, "/") {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodDelete {
					methodNotAllowed(w, http.MethodDelete)
					return
				}
				r = r.WithContext(ContextWithPathDate(r.Context(), date))
				cfg.Schedules.DeleteException(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Trips != nil {
		mux.HandleFunc("/trips", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Trips.List(w, r)
			case http.MethodPost:
				cfg.Trips.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/trips/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/trips/")
			id, sub := splitTripPath(rest)
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithPathID(r.Context(), id))

			switch {
			case sub == "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Trips.Get(w, r)
			case sub == "assign":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Trips.Assign(w, r)
			case sub == "start":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Trips.Start(w, r)
			case sub == "cancel":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Trips.Cancel(w, r)
			case sub == "complete":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Trips.Complete(w, r)
			case sub == "retime":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Trips.Retime(w, r)
			case strings.HasPrefix(sub, "stops/") && strings.HasSuffix(sub, "/actual"):
				stopID := strings.TrimSuffix(strings.TrimPrefix(sub, "stops/"), "/actual")
				if stopID == "" || strings.Contains(stopID, "/") {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPut {
					methodNotAllowed(w, http.MethodPut)
					return
				}
				r = r.WithContext(ContextWithStopID(r.Context(), stopID))
				cfg.Trips.RecordStopActual(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	// Health and metrics bypass the API middleware so orchestrators and
	// scrapers do not need a company header.
	outer := http.NewServeMux()
	outer.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	if cfg.Metrics != nil {
		outer.Handle("/metrics", cfg.Metrics)
	}
	outer.Handle("/", handler)
	return outer
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// splitTripPath separates a trip identifier from a nested action path.
// Virtual identifiers contain colons but never slashes, so the first slash
// always ends the identifier.
func splitTripPath(rest string) (id, sub string) {
	id, sub, _ = strings.Cut(rest, "/")
	return id, sub
}
