package service

import (
	"errors"

	"campusride/internal/repository"
)

var (
	// ErrMissingFields is returned when a required creation field is absent.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidSeats is returned when availableSeats is outside 1..20.
	ErrInvalidSeats = errors.New("available seats must be between 1 and 20")

	// ErrInvalidPrice is returned when pricePerSeat is negative.
	ErrInvalidPrice = errors.New("price per seat must not be negative")

	// ErrInvalidDecision is returned when a booking decision is neither
	// confirmed nor rejected.
	ErrInvalidDecision = errors.New("invalid booking decision")

	// ErrCancelReasonRequired is returned when cancelling a trip with
	// confirmed passengers and no reason.
	ErrCancelReasonRequired = errors.New("cancellation reason required")

	// ErrSelfBooking is returned when a driver tries to book their own trip.
	ErrSelfBooking = errors.New("cannot book own trip")

	// ErrNotDriverRole is returned when a non-driver tries to create a trip.
	ErrNotDriverRole = errors.New("only drivers can create trips")

	// ErrDriverNotApproved is returned when the driver has not passed the
	// admin approval gate.
	ErrDriverNotApproved = errors.New("driver not approved")

	// ErrNotTripDriver is returned when an actor other than the trip's
	// driver attempts a driver-only operation.
	ErrNotTripDriver = errors.New("actor is not the trip driver")

	// ErrNotChatParticipant is returned when a user without chat rights
	// tries to read or post.
	ErrNotChatParticipant = errors.New("not a chat participant")

	// ErrBookingNotFound is returned when no pending booking entry exists
	// for the passenger.
	ErrBookingNotFound = errors.New("pending booking not found")

	// ErrPassengerNotConfirmed is returned when no confirmed entry exists
	// for the passenger.
	ErrPassengerNotConfirmed = errors.New("passenger not confirmed on trip")

	// ErrDriverHasActiveTrip is returned when the driver already has an
	// active trip.
	ErrDriverHasActiveTrip = errors.New("driver already has an active trip")

	// ErrBookingAlreadyPending is returned on a duplicate booking request.
	ErrBookingAlreadyPending = errors.New("booking request already pending")

	// ErrAlreadyConfirmed is returned when re-requesting a confirmed seat.
	ErrAlreadyConfirmed = errors.New("passenger already confirmed")

	// ErrPassengersInVehicle is returned when cancelling after boarding began.
	ErrPassengersInVehicle = errors.New("passengers already in vehicle")

	// ErrAlreadyInVehicle is returned when a passenger re-confirms boarding.
	ErrAlreadyInVehicle = errors.New("already confirmed in vehicle")

	// ErrNoConfirmedPassengers is returned when starting a trip with no
	// confirmed passengers.
	ErrNoConfirmedPassengers = errors.New("no confirmed passengers")

	// ErrConcurrentUpdate is returned when a conditional update loses the
	// race too many times in a row.
	ErrConcurrentUpdate = errors.New("trip update contention")

	// ErrTripNotOpen is returned when the trip is not accepting this
	// operation in its current status (needs waiting or full).
	ErrTripNotOpen = errors.New("trip not open")

	// ErrTripNotInProgress is returned when an in-progress-only operation
	// targets a trip in another status.
	ErrTripNotInProgress = errors.New("trip not in progress")

	// ErrTripNotActive is returned when chat is requested for a trip in a
	// terminal status.
	ErrTripNotActive = errors.New("trip no longer active")

	// ErrTripExpired is returned when the booking window has passed.
	ErrTripExpired = errors.New("trip expired")

	// ErrTripFull is returned when confirming a seat beyond capacity.
	ErrTripFull = errors.New("trip full")

	// ErrChatClosed is returned when posting to a closed chat.
	ErrChatClosed = errors.New("chat closed")

	// ErrInvalidMessage is returned when a chat message is empty or too
	// long after trimming.
	ErrInvalidMessage = errors.New("invalid chat message")
)

// ErrorKind is the machine-readable classification clients branch on.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION_ERROR"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindExpired      ErrorKind = "EXPIRED"
	KindFull         ErrorKind = "FULL"
	KindInternal     ErrorKind = "INTERNAL"
)

// Describe classifies an error into its kind and the user-facing reason.
// Clients are expected to branch on the kind, never on the message text.
func Describe(err error) (ErrorKind, string) {
	switch {
	case errors.Is(err, ErrMissingFields):
		return KindValidation, "Faltan campos requeridos: origin, destination, departureTime, availableSeats, pricePerSeat"
	case errors.Is(err, ErrInvalidSeats):
		return KindValidation, "availableSeats debe ser un número entre 1 y 20"
	case errors.Is(err, ErrInvalidPrice):
		return KindValidation, "pricePerSeat debe ser un número positivo"
	case errors.Is(err, ErrInvalidDecision):
		return KindValidation, "Estado inválido. Debe ser 'confirmed' o 'rejected'."
	case errors.Is(err, ErrCancelReasonRequired):
		return KindValidation, "Debes proporcionar un motivo de cancelación cuando hay pasajeros confirmados."
	case errors.Is(err, ErrSelfBooking):
		return KindValidation, "No puedes reservar en tu propio viaje"
	case errors.Is(err, ErrInvalidMessage):
		return KindValidation, "El mensaje está vacío o es demasiado largo (máximo 500 caracteres)"

	case errors.Is(err, ErrNotDriverRole):
		return KindForbidden, "Solo conductores pueden crear viajes"
	case errors.Is(err, ErrDriverNotApproved):
		return KindForbidden, "Debes completar tu perfil de conductor y ser aprobado por un administrador antes de poder crear viajes."
	case errors.Is(err, ErrNotTripDriver):
		return KindForbidden, "No autorizado. Solo el conductor puede gestionar este viaje."
	case errors.Is(err, ErrNotChatParticipant):
		return KindForbidden, "No tienes permiso para chatear en este viaje"

	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound, "Viaje no encontrado"
	case errors.Is(err, ErrBookingNotFound):
		return KindNotFound, "Solicitud de pasajero no encontrada o ya gestionada"
	case errors.Is(err, ErrPassengerNotConfirmed):
		return KindNotFound, "No estás confirmado en este viaje"

	case errors.Is(err, ErrDriverHasActiveTrip):
		return KindConflict, "Ya tienes un viaje activo. Debes esperar a que expire o completar el actual antes de crear uno nuevo."
	case errors.Is(err, ErrBookingAlreadyPending):
		return KindConflict, "Ya tienes una solicitud pendiente para este viaje"
	case errors.Is(err, ErrAlreadyConfirmed):
		return KindConflict, "Ya estás confirmado en este viaje"
	case errors.Is(err, ErrPassengersInVehicle):
		return KindConflict, "No puedes cancelar el viaje porque hay pasajeros que ya están en el vehículo."
	case errors.Is(err, ErrAlreadyInVehicle):
		return KindConflict, "Ya confirmaste que estás en el vehículo"
	case errors.Is(err, ErrNoConfirmedPassengers):
		return KindConflict, "No puedes iniciar el viaje sin pasajeros confirmados"
	case errors.Is(err, ErrConcurrentUpdate):
		return KindConflict, "El viaje fue modificado por otra operación. Intenta de nuevo."

	case errors.Is(err, ErrTripNotOpen):
		return KindInvalidState, "El viaje no está activo para esta operación"
	case errors.Is(err, ErrTripNotInProgress):
		return KindInvalidState, "Solo se pueden realizar estas acciones en viajes que están en curso"
	case errors.Is(err, ErrTripNotActive):
		return KindInvalidState, "El viaje ya no está activo"
	case errors.Is(err, ErrChatClosed):
		return KindInvalidState, "El chat de este viaje ya no está activo"

	case errors.Is(err, ErrTripExpired):
		return KindExpired, "Este viaje ha expirado"

	case errors.Is(err, ErrTripFull):
		return KindFull, "El viaje ya está lleno"

	default:
		return KindInternal, "Error del servidor"
	}
}
