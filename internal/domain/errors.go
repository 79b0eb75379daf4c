package domain

import "errors"

// Domain errors.
var (
	// Transient : l'appel au service externe a échoué, l'utilisateur peut réessayer.
	ErrTransient = errors.New("service externe momentanément indisponible")

	// Validation : entrée refusée, aucun état modifié.
	ErrBadLink         = errors.New("lien invalide")
	ErrBadScore        = errors.New("format ou valeur de score invalide")
	ErrBadStreamAccess = errors.New("paramètres d'accès au stream invalides")

	// Précondition : commande hors fenêtre de temps ou mauvais statut.
	ErrWrongState    = errors.New("statut du tournoi incompatible avec cette action")
	ErrTooEarly      = errors.New("trop tôt pour effectuer cette action")
	ErrTooLate       = errors.New("trop tard pour effectuer cette action")
	ErrStartInPast   = errors.New("le début du tournoi doit être dans le futur")
	ErrUnknownGame   = errors.New("jeu non reconnu par la configuration")
	ErrMatchTooShort = errors.New("durée écoulée du set trop courte")
	ErrMatchNotBegun = errors.New("le set n'a pas encore commencé")

	// Absence : souvent absorbée silencieusement quand elle est attendue.
	ErrNoTournament  = errors.New("aucun tournoi en cours")
	ErrNoOpenMatch   = errors.New("aucun set ouvert pour ce joueur")
	ErrNotRegistered = errors.New("joueur non inscrit au tournoi")
	ErrNotStreaming  = errors.New("aucun stream initialisé pour cet opérateur")
	ErrNotFound      = errors.New("ressource introuvable")

	// Persistance : écriture concurrente détectée, l'opération doit être rejouée.
	ErrVersionConflict = errors.New("conflit de version sur l'état persisté")
)
