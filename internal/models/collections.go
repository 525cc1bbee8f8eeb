package models

// Collection names in the backing record table. These mirror the sheet
// names the deployed mobile clients already know.
const (
	CollectionPeople = "pessoas"
	CollectionLogs   = "logs"
	CollectionRoster = "alunos"
	CollectionRooms  = "quartos"
	CollectionEvents = "eventos"
	CollectionLogins = "login"
)

// WindowCollections are the collections scoped by a trip window and
// cleared together when a trip is closed.
var WindowCollections = []string{CollectionPeople, CollectionLogs, CollectionRoster}
