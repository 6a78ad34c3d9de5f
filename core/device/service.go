package device

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
)

var ErrNotFound = errors.New("device token not found")

type (
	Repository interface {
		// RegisterToken deactivates every other active token of (tok.UserID, tok.Platform) and inserts tok,
		// or re-activates and re-assigns the row already holding tok.Token, in a single atomic step.
		RegisterToken(ctx context.Context, tok Token) (Token, error)
		ActiveTokens(ctx context.Context, userID string) ([]Token, error)
		// DeactivateTokens deactivates the given token values and returns how many rows changed.
		DeactivateTokens(ctx context.Context, tokens ...string) (int, error)
		DeactivateTokenIDs(ctx context.Context, ids ...string) (int, error)
		// DeactivateUserToken deactivates `token` only if it belongs to `userID`
		// and returns the number of matching rows, whether or not they were already inactive.
		DeactivateUserToken(ctx context.Context, userID, token string) (int, error)
		MarkUsed(ctx context.Context, at time.Time, tokens ...string) error
		// UsersWithDuplicates lists users holding more than one active token on a platform.
		UsersWithDuplicates(ctx context.Context) ([]string, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{repo: repo, validate: validate, logger: logger}
}

// Register makes nt the one active token of the user on its platform.
func (svc *Service) Register(ctx context.Context, userID string, nt NewToken) (Token, error) {
	nt.clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Token{}, err
	}
	tok, err := svc.repo.RegisterToken(ctx, nt.build(userID, time.Now().UTC()))
	if err != nil {
		return Token{}, errors.Wrap(err, "registering device token")
	}
	return tok, nil
}

func (svc *Service) GetActiveTokens(ctx context.Context, userID string) ([]Token, error) {
	toks, err := svc.repo.ActiveTokens(ctx, userID)
	return toks, errors.Wrap(err, "querying active device tokens")
}

// Deactivate marks the tokens inactive. Unknown or already inactive tokens are ignored.
func (svc *Service) Deactivate(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	n, err := svc.repo.DeactivateTokens(ctx, tokens...)
	if err != nil {
		return errors.Wrap(err, "deactivating device tokens")
	}
	if n > 0 {
		svc.logger.Info(fmt.Sprintf("deactivated %d device token(s)", n))
	}
	return nil
}

// Unregister deactivates one of the user's tokens, typically on logout.
func (svc *Service) Unregister(ctx context.Context, userID, token string) error {
	token = core.CleanString(token)
	if token == "" {
		return core.NewValidationError(errors.New("invalid input"), core.FieldError{Field: "token", Error: "this field is required"})
	}
	n, err := svc.repo.DeactivateUserToken(ctx, userID, token)
	if err != nil {
		return errors.Wrap(err, "unregistering device token")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (svc *Service) MarkUsed(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	return errors.Wrap(svc.repo.MarkUsed(ctx, at.UTC(), tokens...), "marking device tokens used")
}

// CleanupDuplicates keeps only the most recently used active token per platform for the user
// and returns the number of tokens deactivated.
func (svc *Service) CleanupDuplicates(ctx context.Context, userID string) (int, error) {
	toks, err := svc.repo.ActiveTokens(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "querying active device tokens")
	}

	byPlatform := make(map[Platform][]Token)
	for _, tok := range toks {
		byPlatform[tok.Platform] = append(byPlatform[tok.Platform], tok)
	}

	var stale []string
	for _, group := range byPlatform {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			ti, tj := group[i].lastSeen(), group[j].lastSeen()
			if ti.Equal(tj) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return ti.After(tj)
		})
		for _, tok := range group[1:] {
			stale = append(stale, tok.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := svc.repo.DeactivateTokenIDs(ctx, stale...)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating duplicate device tokens")
	}
	return n, nil
}

// CleanupAll runs CleanupDuplicates for every user holding duplicate active tokens.
func (svc *Service) CleanupAll(ctx context.Context) (int, error) {
	userIDs, err := svc.repo.UsersWithDuplicates(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying users with duplicate device tokens")
	}

	var total int
	for _, uid := range userIDs {
		if err = ctx.Err(); err != nil {
			return total, err
		}
		n, err := svc.CleanupDuplicates(ctx, uid)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("cleaning up device tokens of user %s: %v", uid, err), err)
			continue
		}
		total += n
	}
	if total > 0 {
		svc.logger.Info(fmt.Sprintf("device token cleanup: deactivated %d duplicate(s) for %d user(s)", total, len(userIDs)))
	}
	return total, nil
}
