package ragflow

// Document run states reported by the listing endpoint.
const (
	RunUnstarted = 0
	RunRunning   = 1
	RunCancelled = 2
	RunDone      = 3
	RunFailed    = 4
)

// Document is one remote document as reported by the listing endpoint.
type Document struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Run      int     `json:"run,string"`
	Progress float64 `json:"progress"`
}

// UploadFile names one local file to upload and the display name the
// remote document should carry.
type UploadFile struct {
	LocalPath   string
	DisplayName string
}

// UploadedDocument is a document id assigned during upload, when the
// remote includes created documents in the upload response.
type UploadedDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type deleteRequest struct {
	DocIDs []string `json:"doc_id"`
}

type runRequest struct {
	DocIDs []string `json:"doc_ids"`
	Run    int      `json:"run"`
	Delete string   `json:"delete"`
}

type listData struct {
	Docs  []Document `json:"docs"`
	Total int        `json:"total"`
}
