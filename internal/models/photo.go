package models

// PhotoURL is the address of a single gallery image.
type PhotoURL string
