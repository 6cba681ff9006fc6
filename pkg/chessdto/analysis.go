package chessdto

// AnalyzeRequest is the body of POST /analyse-position. Moves are UCI
// moves played from FEN before the search starts.
type AnalyzeRequest struct {
	FEN        string   `json:"fen"`
	Moves      []string `json:"moves,omitempty"`
	TimeMillis int      `json:"time_ms,omitempty"`
	Depth      int      `json:"depth,omitempty"`
}

type Evaluation struct {
	// Type is "cp", "mate" or "none".
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type AnalyzeResponse struct {
	BestMove    string     `json:"best_move"`
	BestMoveSAN string     `json:"best_move_san,omitempty"`
	Ponder      string     `json:"ponder,omitempty"`
	Score       string     `json:"score"`
	Evaluation  Evaluation `json:"evaluation"`
	Depth       int        `json:"depth,omitempty"`
	PV          []string   `json:"pv,omitempty"`
	PVSAN       []string   `json:"pv_san,omitempty"`
	Opening     *Opening   `json:"opening,omitempty"`
	BookMoves   []BookMove `json:"book_moves,omitempty"`
}

// Opening is reported only for games played from the initial position.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

type BookMove struct {
	Move   string `json:"move"`
	SAN    string `json:"san,omitempty"`
	Weight int    `json:"weight"`
}

type PoolStats struct {
	Total    int `json:"total"`
	Idle     int `json:"idle"`
	Capacity int `json:"capacity"`
}

type HealthResponse struct {
	Status string     `json:"status"`
	Mode   string     `json:"mode"`
	Engine string     `json:"engine"`
	Pool   *PoolStats `json:"pool,omitempty"`
	Cache  bool       `json:"cache"`
}
