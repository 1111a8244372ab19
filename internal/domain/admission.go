package domain

type AdmissionStatus string

const (
	AdmissionAdmitted          AdmissionStatus = "ADMITTED"
	AdmissionAlreadyAdmitted   AdmissionStatus = "ALREADY_ADMITTED"
	AdmissionUnknownTicket     AdmissionStatus = "UNKNOWN_TICKET"
	AdmissionInvalidCredential AdmissionStatus = "INVALID_CREDENTIAL"
	AdmissionEmptyInput        AdmissionStatus = "EMPTY_INPUT"
)

func (s AdmissionStatus) Message() string {
	switch s {
	case AdmissionAdmitted:
		return "Entry allowed"
	case AdmissionAlreadyAdmitted:
		return "Ticket already used"
	case AdmissionUnknownTicket:
		return "Invalid ticket"
	case AdmissionInvalidCredential:
		return "Invalid QR code"
	case AdmissionEmptyInput:
		return "QR code cannot be empty"
	}
	return ""
}
