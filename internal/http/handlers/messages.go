package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgInvalidPayload    = "invalid_payload"
	msgSelectionRequired = "selection_required"
	msgMasterMissing     = "master_missing"
	msgMasterNotLoaded   = "master_not_loaded"
	msgMasterLoaded      = "master_loaded"
	msgMasterDeleted     = "master_deleted"
	msgMasterParsed      = "master_parsed"
	msgMasterReloaded    = "master_reloaded"
	msgMasterUnreadable  = "master_unreadable"
	msgMasterInvalid     = "master_invalid"
	msgInvalidYear       = "invalid_year"
	msgJobNotFound       = "job_not_found"
	msgJobNotActive      = "job_not_active"
	msgJobStarted        = "job_started"
	msgJobStartedCount   = "job_started_count"
	msgJobCancelled      = "job_cancelled"
	msgFileNotFound      = "file_not_found"
	msgFileDeleted       = "file_deleted"
	msgFilesCleared      = "files_cleared"
	msgNoFilesSelected   = "no_files_selected"
	msgInvalidFilename   = "invalid_filename"
	msgUnsupportedFormat = "unsupported_format"
	msgUploadMissing     = "upload_missing"
	msgUploadTooLarge    = "upload_too_large"
	msgInternal          = "internal"

	msgSFTPUnavailable      = "sftp_unavailable"
	msgSFTPConnectFailed    = "sftp_connect_failed"
	msgSFTPFailed           = "sftp_failed"
	msgSFTPConnected        = "sftp_connected"
	msgSFTPDisconnected     = "sftp_disconnected"
	msgSFTPPathRequired     = "sftp_path_required"
	msgSFTPContractRequired = "sftp_contract_required"
	msgSFTPYearMissing      = "sftp_year_missing"
	msgSFTPContractMissing  = "sftp_contract_missing"
)

var messages = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.Spanish))
	set := func(key, es, en string) {
		_ = b.SetString(language.Spanish, key, es)
		_ = b.SetString(language.English, key, en)
	}
	set(msgInvalidPayload, "Solicitud inválida", "Invalid request payload")
	set(msgSelectionRequired, "Seleccione un año o marque procesar todo", "Select a year or process all contracts")
	set(msgMasterMissing, "No hay maestra cargada. Suba un archivo primero.", "No master file loaded. Upload one first.")
	set(msgMasterNotLoaded, "No hay maestra cargada", "No master file loaded")
	set(msgMasterLoaded, "Maestra cargada: %s", "Master file loaded: %s")
	set(msgMasterDeleted, "Maestra eliminada", "Master file deleted")
	set(msgMasterParsed, "Maestra cargada: %d contratos", "Master file loaded: %d contracts")
	set(msgMasterReloaded, "Maestra recargada", "Master file reloaded")
	set(msgMasterUnreadable, "El formato de la maestra no permite consultar sus contratos", "The master file format cannot be inspected for contracts")
	set(msgMasterInvalid, "Error al procesar maestra: %s", "Could not read the master file: %s")
	set(msgInvalidYear, "Año inválido", "Invalid year")
	set(msgJobNotFound, "Job no encontrado", "Job not found")
	set(msgJobNotActive, "El job ya terminó", "The job has already finished")
	set(msgJobStarted, "Procesamiento iniciado en modo %s", "Processing started in %s mode")
	set(msgJobStartedCount, "Procesamiento iniciado para %d contratos", "Processing started for %d contracts")
	set(msgJobCancelled, "Job cancelado", "Job cancelled")
	set(msgFileNotFound, "Archivo no encontrado: %s", "File not found: %s")
	set(msgFileDeleted, "Archivo %s eliminado", "File %s deleted")
	set(msgFilesCleared, "%d archivos eliminados", "%d files deleted")
	set(msgNoFilesSelected, "Debe especificar al menos un archivo", "Specify at least one file")
	set(msgInvalidFilename, "Nombre de archivo inválido", "Invalid file name")
	set(msgUnsupportedFormat, "Formato no soportado. Use .xlsx, .xls, .xlsb, .xlsm o .csv", "Unsupported format. Use .xlsx, .xls, .xlsb, .xlsm or .csv")
	set(msgUploadMissing, "Adjunte el archivo en el campo 'file'", "Attach the file in the 'file' field")
	set(msgUploadTooLarge, "El archivo supera el máximo de %d MB", "The file exceeds the %d MB limit")
	set(msgInternal, "Error interno del servidor", "Internal server error")
	set(msgSFTPUnavailable, "Navegación SFTP no configurada", "SFTP browsing is not configured")
	set(msgSFTPConnectFailed, "No se pudo establecer conexión con el servidor SFTP", "Could not connect to the SFTP server")
	set(msgSFTPFailed, "Error SFTP: %s", "SFTP error: %s")
	set(msgSFTPConnected, "Conexión establecida exitosamente", "Connected")
	set(msgSFTPDisconnected, "Conexión cerrada", "Disconnected")
	set(msgSFTPPathRequired, "Indique la ruta en el parámetro 'ruta'", "Give the path in the 'ruta' parameter")
	set(msgSFTPContractRequired, "Indique el número de contrato", "Give the contract number")
	set(msgSFTPYearMissing, "No existe la carpeta CONTRATOS %s", "There is no CONTRATOS %s folder")
	set(msgSFTPContractMissing, "Contrato %s no encontrado en CONTRATOS %s", "Contract %s not found in CONTRATOS %s")
	return b
}

func localize(locale, key string, args ...any) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Spanish
	}
	p := message.NewPrinter(tag, message.Catalog(messages))
	return p.Sprintf(key, args...)
}
