package codes

const (
	CODE_SUCCESS = 200

	CODE_ERR_BAD_PARAMS    = 400
	CODE_ERR_OBJ_NOT_FOUND = 404
	CODE_ERR_INTERNAL      = 500
)
