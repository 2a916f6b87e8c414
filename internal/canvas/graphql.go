package canvas

import (
	"context"
	"strconv"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"
)

// enrollmentsPage is the cursor/has-next-page envelope Canvas returns
// for the enrollments connection.
type enrollmentsPage struct {
	Course struct {
		EnrollmentsConnection struct {
			Nodes []struct {
				User struct {
					ID string `json:"_id"`
				} `json:"user"`
			} `json:"nodes"`
			PageInfo struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"enrollmentsConnection"`
	} `json:"course"`
}

const enrollmentsQuery = `
query ($courseId: ID!, $first: Int!, $after: String) {
	course(id: $courseId) {
		enrollmentsConnection(
			first: $first
			after: $after
			filter: { types: StudentEnrollment, states: active }
		) {
			nodes {
				user {
					_id
				}
			}
			pageInfo {
				endCursor
				hasNextPage
			}
		}
	}
}`

// EnrolledStudentIDs pages through the course's active student
// enrollments via the GraphQL API and returns the user ids.
func (c *Client) EnrolledStudentIDs(ctx context.Context, courseID int) ([]int, error) {
	client := graphql.NewClient(c.baseURL+"/api/graphql", graphql.WithHTTPClient(c.httpClient))

	var ids []int
	after := ""
	for {
		req := graphql.NewRequest(enrollmentsQuery)
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Var("courseId", strconv.Itoa(courseID))
		req.Var("first", perPage)
		if after != "" {
			req.Var("after", after)
		}

		var page enrollmentsPage
		if err := client.Run(ctx, req, &page); err != nil {
			return nil, errors.Wrap(err, "enrollment query")
		}

		conn := page.Course.EnrollmentsConnection
		for _, node := range conn.Nodes {
			id, err := strconv.Atoi(node.User.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "parse user id %q", node.User.ID)
			}
			ids = append(ids, id)
		}
		if !conn.PageInfo.HasNextPage {
			return ids, nil
		}
		after = conn.PageInfo.EndCursor
	}
}
