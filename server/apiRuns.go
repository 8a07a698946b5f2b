package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

func (s *Server) requireRunDB() {
	if s.RunDB == nil {
		www.PanicBadRequestf("No run database is configured")
	}
}

// Optional query params: stream, limit
func (s *Server) httpRuns(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.requireRunDB()
	runs, err := s.RunDB.ListRuns(www.QueryValue(r, "stream"), www.QueryInt(r, "limit"))
	www.Check(err)
	www.CacheNever(w)
	www.SendJSON(w, runs)
}

func (s *Server) httpRun(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.requireRunDB()
	run, err := s.RunDB.GetRun(www.ParseID(params.ByName("id")))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	www.SendJSON(w, run)
}
