package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrStudentAccessOnly  ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Exam paper ────────────────────────────────────────────────────
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrLoadFailed       ErrCode = "LOAD_FAILED"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrSessionNotStarted ErrCode = "SESSION_NOT_STARTED"
	ErrSessionCompleted  ErrCode = "SESSION_COMPLETED"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrNotCodingQuestion ErrCode = "NOT_CODING_QUESTION"
	ErrNoCurrentQuestion ErrCode = "NO_CURRENT_QUESTION"
	ErrAutosaveFailed    ErrCode = "AUTOSAVE_FAILED"

	// ─── Submission ────────────────────────────────────────────────────
	ErrSubmissionFailed ErrCode = "SUBMISSION_FAILED"
	ErrNoResult         ErrCode = "NO_RESULT"

	// ─── Code execution ────────────────────────────────────────────────
	ErrJudgeUnavailable ErrCode = "JUDGE_UNAVAILABLE"
	ErrRunFailed        ErrCode = "RUN_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Exam paper ────────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotPublished:
		return "Ujian ini belum dipublikasikan."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrLoadFailed:
		return "Soal ujian gagal dimuat. Silakan coba lagi."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrSessionNotStarted:
		return "Sesi ujian belum dimulai."
	case ErrSessionCompleted:
		return "Ujian ini sudah dikumpulkan."
	case ErrSessionClosed:
		return "Sesi ujian sudah ditutup."
	case ErrIndexOutOfRange:
		return "Nomor soal tidak valid."
	case ErrNotCodingQuestion:
		return "Soal saat ini bukan soal pemrograman."
	case ErrNoCurrentQuestion:
		return "Ujian ini tidak memiliki soal untuk ditandai."
	case ErrAutosaveFailed:
		return "Jawaban belum tersimpan di server. Silakan coba lagi."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrSubmissionFailed:
		return "Pengumpulan jawaban gagal. Silakan coba lagi."
	case ErrNoResult:
		return "Ujian ini belum dikumpulkan."

	// ─── Code execution ────────────────────────────────────────────────
	case ErrJudgeUnavailable:
		return "Layanan eksekusi kode sedang tidak tersedia."
	case ErrRunFailed:
		return "Kode gagal dijalankan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
