package apperrors

import (
	"errors"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
)

// Typed errors shared by the service layers. Services wrap them with
// fmt.Errorf("%w: ...") so transports can map them without knowing about
// SDK- or driver-specific error types.
var (
	// ErrInvalidArgument indicates a malformed request (bad amount, missing fields).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUpstream indicates the payment gateway failed or was unreachable.
	ErrUpstream = errors.New("upstream error")
	// ErrOrderCreationFailed indicates the gateway answered without a usable order.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrEntitlementSyncFailed indicates money moved but the entitlement write did not land.
	ErrEntitlementSyncFailed = errors.New("entitlement sync failed")
	// ErrAuthRequired indicates the action needs an authenticated user.
	ErrAuthRequired = errors.New("authentication required")
	// ErrReauthRequired indicates a destructive action needs a fresh credential proof.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrPaymentUnverified indicates the gateway could not vouch for the payment.
	ErrPaymentUnverified = errors.New("payment not verified")
	// ErrNotFound indicates the addressed record does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrProRequired indicates a Pro-only feature was used on the free plan.
	ErrProRequired = errors.New("pro plan required")
	// ErrPlanLimit indicates the free plan quota is exhausted.
	ErrPlanLimit = errors.New("plan limit reached")
	// ErrDatabase indicates a storage failure.
	ErrDatabase = errors.New("database error")
)

var kinds = []struct {
	err  error
	kind string
	code codes.Code
}{
	{ErrInvalidArgument, "InvalidArgument", codes.InvalidArgument},
	{ErrUpstream, "UpstreamError", codes.Unavailable},
	{ErrOrderCreationFailed, "OrderCreationFailed", codes.Internal},
	{ErrEntitlementSyncFailed, "EntitlementSyncFailed", codes.Internal},
	{ErrAuthRequired, "AuthRequired", codes.Unauthenticated},
	{ErrReauthRequired, "ReauthRequired", codes.Unauthenticated},
	{ErrPaymentUnverified, "PaymentUnverified", codes.PermissionDenied},
	{ErrNotFound, "NotFound", codes.NotFound},
	{ErrProRequired, "ProRequired", codes.PermissionDenied},
	{ErrPlanLimit, "PlanLimit", codes.FailedPrecondition},
	{ErrDatabase, "DatabaseError", codes.Internal},
}

// Kind returns the taxonomy name of err, or "Internal" for unclassified errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

// Code maps err onto a gRPC status code.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return codes.Internal
}

// HTTPStatus maps err onto the HTTP status grpc-gateway would use for its code.
func HTTPStatus(err error) int {
	return runtime.HTTPStatusFromCode(Code(err))
}
