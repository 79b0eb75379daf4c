package application

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/ports/input"
	"atos/internal/ports/output"
	"atos/pkg/tz"
)

var _ input.RegistrationUseCase = (*RegistrationService)(nil)

// counterPattern matches the live participant counter inside the
// registration announcement ("12/64 joueurs").
var counterPattern = regexp.MustCompile(`[0-9]{1,3}/`)

// RegistrationService owns the participant and waitlist aggregates.
type RegistrationService struct {
	store      output.StateStore
	bracket    output.BracketService
	gateway    output.ChatGateway
	translator output.T
	locale     string
	channels   Channels
	roles      Roles
	now        func() time.Time
}

func NewRegistrationService(
	store output.StateStore,
	bracket output.BracketService,
	gateway output.ChatGateway,
	translator output.T,
	locale string,
	channels Channels,
	roles Roles,
) *RegistrationService {
	return &RegistrationService{
		store:      store,
		bracket:    bracket,
		gateway:    gateway,
		translator: translator,
		locale:     locale,
		channels:   channels,
		roles:      roles,
		now:        time.Now,
	}
}

// Join registers the member when a slot is free, otherwise waitlists them.
// Re-joining is a no-op. The bracket-service registration happens before any
// persistence write, so a transient failure leaves state untouched.
func (s *RegistrationService) Join(ctx context.Context, member entities.Member) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	if !t.IsPending() {
		return domain.ErrWrongState
	}
	if s.now().After(t.CheckInEnd) {
		return domain.ErrTooLate
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	waitlist, err := s.store.Waitlist(ctx)
	if err != nil {
		return err
	}

	if participants.Get(member.ID) != nil {
		return nil
	}

	if participants.Len() < t.Cap {
		part := &entities.Participant{UserID: member.ID, DisplayName: member.DisplayName}

		// Bulk mode defers bracket registration until check-in closes.
		if !t.BulkMode {
			var bracketID int64
			err := withRetry(ctx, func() error {
				var err error
				bracketID, err = s.bracket.CreateParticipant(ctx, t.ID, part.DisplayName)
				return err
			})
			if err != nil {
				return fmt.Errorf("register %s with bracket: %w", member.ID, err)
			}
			part.BracketID = bracketID
		}

		if s.now().After(t.CheckInStart) {
			part.CheckedIn = true
			if err := s.gateway.GrantRole(ctx, member.ID, s.roles.Challenger); err != nil {
				log.Printf("⚠️ Attribution du rôle challenger (%s): %v", member.ID, err)
			}
		}

		participants.Add(part)
		if err := s.store.SaveParticipants(ctx, participants); err != nil {
			return err
		}
		s.refreshCounter(ctx, t, participants.Len())
		s.dm(ctx, member.ID, "dm.join.registered", map[string]any{"Name": t.Name})
		return nil
	}

	// Cap reached: waitlist, creating its public message lazily.
	if waitlist.Contains(member.ID) {
		return nil
	}
	if t.WaitlistMsgID == "" {
		msgID, err := s.gateway.SendMessage(ctx, s.channels.Signup, ":hourglass: __Liste d'attente__ :\n")
		if err != nil {
			return fmt.Errorf("create waitlist message: %w", err)
		}
		t.WaitlistMsgID = msgID
		if err := s.store.SaveTournament(ctx, t); err != nil {
			return err
		}
	}
	waitlist.Push(entities.WaitlistEntry{UserID: member.ID, DisplayName: member.DisplayName})
	if err := s.store.SaveWaitlist(ctx, waitlist); err != nil {
		return err
	}
	s.renderWaitlist(ctx, t, waitlist)
	s.dm(ctx, member.ID, "dm.join.waitlisted", map[string]any{"Name": t.Name})
	return nil
}

// Leave deregisters the member. Before check-in closes the local record is
// removed and the waitlist head is promoted; afterwards only the bracket
// entry is dropped and the record stays for the disqualification flow.
func (s *RegistrationService) Leave(ctx context.Context, memberID string) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	waitlist, err := s.store.Waitlist(ctx)
	if err != nil {
		return err
	}

	part := participants.Get(memberID)
	if part == nil {
		if waitlist.Remove(memberID) {
			if err := s.store.SaveWaitlist(ctx, waitlist); err != nil {
				return err
			}
			s.renderWaitlist(ctx, t, waitlist)
			s.dm(ctx, memberID, "dm.leave.waitlist", map[string]any{"Name": t.Name})
		}
		return nil
	}

	if (!t.BulkMode || s.now().After(t.CheckInEnd)) && part.BracketID != 0 {
		err := withRetry(ctx, func() error {
			return s.bracket.DestroyParticipant(ctx, t.ID, part.BracketID)
		})
		if err != nil {
			return fmt.Errorf("deregister %s from bracket: %w", memberID, err)
		}
	}

	if s.now().After(t.CheckInStart) {
		if err := s.gateway.RevokeRole(ctx, memberID, s.roles.Challenger); err != nil {
			log.Printf("⚠️ Retrait du rôle challenger (%s): %v", memberID, err)
		}
	}

	// After check-in closes the record is left in place on purpose: the
	// disqualification flow owns post-close removal.
	if !s.now().Before(t.CheckInEnd) {
		return nil
	}

	participants.Remove(memberID)
	if err := s.store.SaveParticipants(ctx, participants); err != nil {
		return err
	}
	if err := s.gateway.RemoveUserReaction(ctx, s.channels.Signup, t.AnnounceID, signupEmoji, memberID); err != nil {
		log.Printf("⚠️ Retrait de la réaction d'inscription (%s): %v", memberID, err)
	}
	s.refreshCounter(ctx, t, participants.Len())
	s.dm(ctx, memberID, "dm.leave.registered", map[string]any{"Name": t.Name})

	return s.promoteNext(ctx, t, waitlist)
}

// promoteNext moves the waitlist head into the participants, FIFO. The
// promoted player must check in again no matter when check-in opened.
func (s *RegistrationService) promoteNext(ctx context.Context, t *entities.Tournament, waitlist *entities.Waitlist) error {
	if len(waitlist.Entries) == 0 {
		return nil
	}
	head := waitlist.Entries[0]
	if err := s.Join(ctx, entities.Member{ID: head.UserID, DisplayName: head.DisplayName}); err != nil {
		return fmt.Errorf("promote %s: %w", head.UserID, err)
	}

	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	if part := participants.Get(head.UserID); part != nil && part.CheckedIn {
		part.CheckedIn = false
		if err := s.store.SaveParticipants(ctx, participants); err != nil {
			return err
		}
	}

	waitlist.Pop()
	if err := s.store.SaveWaitlist(ctx, waitlist); err != nil {
		return err
	}
	s.renderWaitlist(ctx, t, waitlist)
	s.dm(ctx, head.UserID, "dm.waitlist.promoted", map[string]any{"Name": t.Name})
	return nil
}

// CheckIn confirms the member's presence. Only valid inside the check-in
// window of a pending tournament.
func (s *RegistrationService) CheckIn(ctx context.Context, memberID string) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	if !t.IsPending() || s.now().After(t.CheckInEnd) {
		return domain.ErrWrongState
	}
	if s.now().Before(t.CheckInStart) {
		return domain.ErrTooEarly
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	part := participants.Get(memberID)
	if part == nil {
		return domain.ErrNotRegistered
	}
	if part.CheckedIn {
		return nil
	}
	part.CheckedIn = true
	return s.store.SaveParticipants(ctx, participants)
}

// Withdraw self-disqualifies the member while the bracket is underway;
// pending-phase departures go through Leave instead.
func (s *RegistrationService) Withdraw(ctx context.Context, memberID string) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	if !t.IsUnderway() {
		return domain.ErrWrongState
	}
	return s.Leave(ctx, memberID)
}

// IsRegistered reports whether the member currently holds a slot.
func (s *RegistrationService) IsRegistered(ctx context.Context, memberID string) (bool, error) {
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return false, err
	}
	return participants.Get(memberID) != nil, nil
}

// ReactSignup routes a ✅ reaction toggle on the registration announcement
// to Join or Leave. Reactions elsewhere are silently ignored.
func (s *RegistrationService) ReactSignup(ctx context.Context, messageID string, member entities.Member, added bool) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil || t.AnnounceID == "" || t.AnnounceID != messageID {
		return nil
	}
	if added {
		return s.Join(ctx, member)
	}
	return s.Leave(ctx, member.ID)
}

// OpenCheckIn grants the challenger role to everyone registered and opens
// the check-in channel. Job body of "checkin-open".
func (s *RegistrationService) OpenCheckIn(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}
	for userID := range participants.ByUser {
		if err := s.gateway.GrantRole(ctx, userID, s.roles.Challenger); err != nil {
			log.Printf("⚠️ Attribution du rôle challenger (%s): %v", userID, err)
		}
	}

	end := tz.Clock(t.CheckInEnd)
	if _, err := s.gateway.SendMessage(ctx, s.channels.Signup,
		fmt.Sprintf(":information_source: Le check-in a commencé dans <#%s>. Vous pouvez toujours vous inscrire ici jusqu'à **%s** tant qu'il y a de la place.",
			s.channels.CheckIn, end)); err != nil {
		log.Printf("⚠️ Annonce d'ouverture du check-in: %v", err)
	}
	_, err = s.gateway.SendMessage(ctx, s.channels.CheckIn,
		fmt.Sprintf("<@&%s> Le check-in pour **%s** a commencé ! Vous avez jusqu'à **%s** pour signaler votre présence :\n"+
			":white_small_square: Utilisez `!in` pour confirmer votre inscription\n:white_small_square: Utilisez `!out` pour vous désinscrire\n\n"+
			"*Si vous n'avez pas check-in à temps, vous serez désinscrit automatiquement du tournoi.*",
			s.roles.Challenger, t.Name, end))
	return err
}

// RemindCheckIn pings members that still have to check in; in the final ten
// minutes they also get a direct message. Job body of "checkin-reminder".
func (s *RegistrationService) RemindCheckIn(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}

	lastCall := t.CheckInEnd.Sub(s.now()) < dqGrace
	var pending strings.Builder
	for userID, part := range participants.ByUser {
		if part.CheckedIn {
			continue
		}
		fmt.Fprintf(&pending, "- <@%s>\n", userID)
		if lastCall {
			s.dm(ctx, userID, "dm.checkin.lastcall", map[string]any{"Name": t.Name})
		}
	}
	if pending.Len() == 0 {
		return nil
	}
	_, err = s.gateway.SendMessage(ctx, s.channels.CheckIn,
		fmt.Sprintf(":clock1: **Rappel de check-in !**\n%s\n*Vous avez jusqu'à %s, sinon vous serez désinscrit(s) automatiquement.*",
			pending.String(), tz.Clock(t.CheckInEnd)))
	return err
}

// CloseCheckIn drops everyone who did not check in, then triggers deferred
// bracket seeding when bulk mode is active. Job body of "checkin-close".
func (s *RegistrationService) CloseCheckIn(ctx context.Context) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return err
	}

	if err := s.gateway.ClearReaction(ctx, s.channels.Signup, t.AnnounceID, signupEmoji); err != nil {
		log.Printf("⚠️ Nettoyage des réactions d'inscription: %v", err)
	}

	for userID, part := range participants.ByUser {
		if part.CheckedIn {
			continue
		}
		if !t.BulkMode && part.BracketID != 0 {
			err := withRetry(ctx, func() error {
				return s.bracket.DestroyParticipant(ctx, t.ID, part.BracketID)
			})
			if err != nil {
				log.Printf("❌ Désinscription bracket de %s: %v", userID, err)
				continue
			}
		}
		if err := s.gateway.RevokeRole(ctx, userID, s.roles.Challenger); err != nil {
			log.Printf("⚠️ Retrait du rôle challenger (%s): %v", userID, err)
		}
		s.dm(ctx, userID, "dm.checkin.missed", map[string]any{"Name": t.Name})
		participants.Remove(userID)
	}

	if err := s.store.SaveParticipants(ctx, participants); err != nil {
		return err
	}
	s.refreshCounter(ctx, t, participants.Len())

	if _, err := s.gateway.SendMessage(ctx, s.channels.CheckIn,
		":clock1: **Le check-in est terminé.** Les personnes n'ayant pas check-in ont été retirées du bracket. Contactez les TOs en cas de besoin."); err != nil {
		log.Printf("⚠️ Annonce de fin de check-in: %v", err)
	}
	if _, err := s.gateway.SendMessage(ctx, s.channels.Signup,
		":clock1: **Les inscriptions sont fermées.** Le tournoi débutera dans les minutes qui suivent : le bracket est en cours de finalisation. Contactez les TOs en cas de besoin."); err != nil {
		log.Printf("⚠️ Annonce de fermeture des inscriptions: %v", err)
	}

	if t.BulkMode {
		return s.seedDeferred(ctx, t, participants)
	}
	return nil
}

// seedDeferred registers every remaining participant with the bracket
// service at once, for tournaments that ran in bulk mode.
func (s *RegistrationService) seedDeferred(ctx context.Context, t *entities.Tournament, participants *entities.Participants) error {
	for userID, part := range participants.ByUser {
		if part.BracketID != 0 {
			continue
		}
		var bracketID int64
		err := withRetry(ctx, func() error {
			var err error
			bracketID, err = s.bracket.CreateParticipant(ctx, t.ID, part.DisplayName)
			return err
		})
		if err != nil {
			log.Printf("❌ Seeding différé de %s: %v", userID, err)
			continue
		}
		part.BracketID = bracketID
	}
	return s.store.SaveParticipants(ctx, participants)
}

// refreshCounter rewrites the live counter inside the public announcement.
func (s *RegistrationService) refreshCounter(ctx context.Context, t *entities.Tournament, count int) {
	if t.AnnounceID == "" {
		return
	}
	msg, err := s.gateway.Message(ctx, s.channels.Signup, t.AnnounceID)
	if err != nil {
		log.Printf("⚠️ Lecture de l'annonce d'inscription: %v", err)
		return
	}
	content := counterPattern.ReplaceAllString(msg.Content, fmt.Sprintf("%d/", count))
	if err := s.gateway.EditMessage(ctx, s.channels.Signup, t.AnnounceID, content); err != nil {
		log.Printf("⚠️ Mise à jour du compteur d'inscrits: %v", err)
	}
}

// renderWaitlist repaints the public waitlist message from scratch.
func (s *RegistrationService) renderWaitlist(ctx context.Context, t *entities.Tournament, waitlist *entities.Waitlist) {
	if t.WaitlistMsgID == "" {
		return
	}
	var b strings.Builder
	b.WriteString(":hourglass: __Liste d'attente__ :\n")
	for _, e := range waitlist.Entries {
		fmt.Fprintf(&b, ":white_small_square: %s\n", e.DisplayName)
	}
	if err := s.gateway.EditMessage(ctx, s.channels.Signup, t.WaitlistMsgID, b.String()); err != nil {
		log.Printf("⚠️ Mise à jour de la liste d'attente: %v", err)
	}
}

// dm sends a localized direct message, best effort.
func (s *RegistrationService) dm(ctx context.Context, userID, key string, data map[string]any) {
	if err := s.gateway.SendDM(ctx, userID, s.translator.T(s.locale, key, data)); err != nil {
		log.Printf("⚠️ Envoi de MP à %s (%s): %v", userID, key, err)
	}
}
