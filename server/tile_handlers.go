package server

import (
	"net/http"
	"strconv"
)

// TileHandler proxies a single map tile from the external tile provider,
// riding on the shared cached provider session. Tile coordinates follow the
// usual z/x/y web-mercator addressing.
func (s *Server) TileHandler(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(r.PathValue("y"))
	if errZ != nil || errX != nil || errY != nil {
		errorJSON(w, http.StatusBadRequest, "invalid tile coordinates")
		return
	}
	if z < 0 || z > 22 || x < 0 || y < 0 {
		errorJSON(w, http.StatusBadRequest, "tile coordinates out of range")
		return
	}

	data, contentType, err := s.tiles.FetchTile(r.Context(), z, x, y)
	if err != nil {
		s.log.Warn().Int("z", z).Int("x", x).Int("y", y).Err(err).Msg("tile fetch failed")
		errorJSON(w, statusForError(err), "tile unavailable")
		return
	}

	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
